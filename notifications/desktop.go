package notifications

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/beeep"
)

// DesktopSender shows notifications through the desktop notification daemon.
// Identical consecutive payloads are sent once.
type DesktopSender struct {
	notify func(title, message string) error
	logger *slog.Logger

	mu   sync.Mutex
	last Payload
}

// NewDesktopSender creates a DesktopSender backed by beeep.
func NewDesktopSender(logger *slog.Logger) *DesktopSender {
	return newDesktopSender(func(title, message string) error {
		return beeep.Notify(title, message, "")
	}, logger)
}

func newDesktopSender(notify func(title, message string) error, logger *slog.Logger) *DesktopSender {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DesktopSender{notify: notify, logger: logger}
}

// Send shows payload as a desktop notification. Blank payloads are dropped.
func (s *DesktopSender) Send(payload Payload) {
	payload.Title = strings.TrimSpace(payload.Title)
	payload.Content = strings.TrimSpace(payload.Content)
	if payload.Title == "" && payload.Content == "" {
		return
	}

	s.mu.Lock()
	if payload == s.last {
		s.mu.Unlock()
		return
	}
	s.last = payload
	s.mu.Unlock()

	if err := s.notify(payload.Title, payload.Content); err != nil {
		s.logger.Warn("desktop notification failed", "error", err)
	}
}

// Clear forgets the last payload. Desktop notifications cannot be withdrawn
// once shown, so the next Send always goes out.
func (s *DesktopSender) Clear() {
	s.mu.Lock()
	s.last = Payload{}
	s.mu.Unlock()
}
