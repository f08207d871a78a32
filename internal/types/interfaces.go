package types

import "time"

// Logger defines the structured logging interface used by components that
// need injectable test doubles. The API layer uses *slog.Logger directly.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// Clock abstracts time for testability. Compliance day-counts and the
// newsletter due-issue query both depend on "today"; tests pin it.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
