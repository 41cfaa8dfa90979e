package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/couchcryptid/station-insight-service/internal/domain"
)

// sseSink writes analysis events as server-sent events. Headers are written
// with the first event, so a handler can still send a plain error response
// if nothing was streamed. The sink closes itself on any write or flush
// error and when the request context ends.
type sseSink struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	ctx    context.Context
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
}

func newSSESink(w http.ResponseWriter, r *http.Request, logger *slog.Logger) *sseSink {
	return &sseSink{
		w:      w,
		rc:     http.NewResponseController(w),
		ctx:    r.Context(),
		logger: logger,
	}
}

func (s *sseSink) TrySend(ev domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ctx.Err() != nil {
		s.closed = true
		return false
	}

	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to encode stream event", "type", ev.Type, "error", err)
		return true
	}

	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.closed = true
		return false
	}
	if err := s.rc.Flush(); err != nil {
		s.closed = true
		return false
	}
	return true
}

func (s *sseSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *sseSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.ctx.Err() != nil
}

// Started reports whether any event was written.
func (s *sseSink) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
