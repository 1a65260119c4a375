// Package session owns the conversation state of one chat.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"docchat/internal/events"
	"docchat/internal/helper"
	"docchat/internal/history"
	"docchat/internal/models"
)

var (
	ErrClosed   = errors.New("session closed")
	ErrNotFound = errors.New("session not found")
)

// Engine is satisfied by rag.Engine.
type Engine interface {
	Query(ctx context.Context, question string, h *history.History, k int) (*models.PromptResponse, error)
}

type Options struct {
	TopK         int
	MaxExchanges int
	Emitter      *events.Emitter
}

// Session pairs a History with an engine. Calls on one session are
// serialised, so its History never sees two questions at once.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	engine  Engine
	history *history.History
	topK    int
	emitter *events.Emitter
	closed  bool
}

func New(engine Engine, opts Options) (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.NewEmitter(nil, "")
	}
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		engine:    engine,
		history:   history.New(opts.MaxExchanges),
		topK:      max(opts.TopK, 1),
		emitter:   emitter,
	}, nil
}

// Ask answers question in the context of the session's history and records
// the exchange when the answer succeeds. A failed call leaves history as is.
func (s *Session) Ask(ctx context.Context, question string) (*models.PromptResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	resp, err := s.engine.Query(ctx, question, s.history, s.topK)
	if err != nil {
		log.Error().Err(err).Str("session", s.ID).Msg("Failed to answer question")
		return nil, err
	}
	s.history.Append(question, resp.Content)

	sources := make([]string, 0, len(resp.Sources))
	for _, m := range resp.Sources {
		sources = append(sources, m.ID)
	}
	s.emitter.ExchangeCompleted(ctx, s.ID, question, resp.Content, sources)
	return resp, nil
}

func (s *Session) History() ([]models.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.history.Exchanges(), nil
}

// Reset forgets every exchange.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.history.Reset()
	return nil
}

// Close ends the session. Later calls return ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.emitter.SessionClosed(context.Background(), s.ID, s.history.Len())
	s.history.Reset()
	return nil
}

// Manager keeps the open sessions by ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	engine   Engine
	opts     Options
}

func NewManager(engine Engine, opts Options) *Manager {
	return &Manager{sessions: make(map[string]*Session), engine: engine, opts: opts}
}

func (m *Manager) Create() (*Session, error) {
	s, err := New(m.engine, m.opts)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	log.Debug().Str("session", s.ID).Msg("Session created")
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Delete closes the session and forgets it.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Close()
}

// IDs lists open sessions, oldest first.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	return ids
}

// CloseAll closes every open session, used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
