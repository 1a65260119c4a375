// Package history tracks the question/answer exchanges of one conversation.
package history

import (
	"fmt"
	"strings"

	"docchat/internal/models"
)

// History is an ordered, append-only list of exchanges. It is not safe for
// concurrent use; a session serialises access to its own History.
type History struct {
	exchanges    []models.Exchange
	maxExchanges int
}

// New returns an empty History. maxExchanges > 0 caps its length, evicting
// the oldest exchange first; 0 leaves it unbounded.
func New(maxExchanges int) *History {
	return &History{maxExchanges: max(maxExchanges, 0)}
}

func (h *History) Append(question, answer string) {
	if h.maxExchanges > 0 && len(h.exchanges) >= h.maxExchanges {
		drop := len(h.exchanges) - h.maxExchanges + 1
		h.exchanges = append(h.exchanges[:0:0], h.exchanges[drop:]...)
	}
	h.exchanges = append(h.exchanges, models.Exchange{Question: question, Answer: answer})
}

// Render formats every exchange on its own line, oldest first. An empty
// History renders as "".
func (h *History) Render() string {
	if h == nil {
		return ""
	}
	var b strings.Builder
	for _, e := range h.exchanges {
		b.WriteString(Line(e))
	}
	return b.String()
}

// Line is the rendering of a single exchange.
func Line(e models.Exchange) string {
	return fmt.Sprintf("Human: %s Assistant: %s\n", e.Question, e.Answer)
}

// Exchanges returns a copy of the recorded exchanges.
func (h *History) Exchanges() []models.Exchange {
	if h == nil {
		return nil
	}
	return append([]models.Exchange(nil), h.exchanges...)
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.exchanges)
}

func (h *History) Reset() {
	h.exchanges = nil
}
