package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/config"
)

type recorder struct {
	subjects []string
	payloads []any
	err      error
	closed   bool
}

func (r *recorder) Publish(subject string, data any) error {
	r.subjects = append(r.subjects, subject)
	r.payloads = append(r.payloads, data)
	return r.err
}

func (r *recorder) Close() { r.closed = true }

func TestNewPublisher_NoURLIsNoop(t *testing.T) {
	pub, err := NewPublisher(&config.EventsConfig{})
	require.NoError(t, err)

	assert.IsType(t, Noop{}, pub)
	assert.NoError(t, pub.Publish("x", map[string]string{"a": "b"}))
	pub.Close()
}

func TestEmitter_ExchangeCompleted(t *testing.T) {
	rec := &recorder{}
	e := NewEmitter(rec, "docchat")

	e.ExchangeCompleted(context.Background(), "s1", "q", "a", []string{"doc#0"})

	require.Equal(t, []string{"docchat.exchange.completed"}, rec.subjects)
	ev, ok := rec.payloads[0].(ExchangeCompleted)
	require.True(t, ok)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, []string{"doc#0"}, ev.Sources)
	assert.Len(t, ev.EventID, 36)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"session_id":"s1"`)
}

func TestEmitter_IngestCompleted(t *testing.T) {
	rec := &recorder{}
	e := NewEmitter(rec, "")

	e.IngestCompleted(context.Background(), 2, 7, 1500*time.Millisecond)

	require.Equal(t, []string{SubjectIngestCompleted}, rec.subjects)
	ev := rec.payloads[0].(IngestCompleted)
	assert.Equal(t, 7, ev.Chunks)
	assert.Equal(t, int64(1500), ev.DurationMS)
}

func TestEmitter_PublishFailureIsSwallowed(t *testing.T) {
	rec := &recorder{err: errors.New("no responders")}
	e := NewEmitter(rec, "docchat")

	e.SessionClosed(context.Background(), "s1", 3)
	e.Close()

	assert.Len(t, rec.subjects, 1)
	assert.True(t, rec.closed)
}

func TestNewEmitter_NilPublisher(t *testing.T) {
	e := NewEmitter(nil, "p")
	e.IngestCompleted(context.Background(), 0, 0, 0)
	assert.Equal(t, "p.session.closed", e.Subject(SubjectSessionClosed))
}
