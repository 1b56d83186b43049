package notifications

import "log/slog"

// LogSender writes notifications to a logger, for headless hosts.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger means slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs payload at info level.
func (s *LogSender) Send(payload Payload) {
	s.logger.Info("notification", "title", payload.Title, "content", payload.Content)
}

// Clear logs that the notification was dismissed.
func (s *LogSender) Clear() {
	s.logger.Info("notification cleared")
}
