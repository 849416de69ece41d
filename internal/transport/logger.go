package transport

import "log/slog"

func transportLogger(kind Kind, attrs ...any) *slog.Logger {
	logger := slog.With("component", "transport", "transport", string(kind))
	if len(attrs) == 0 {
		return logger
	}

	return logger.With(attrs...)
}
