package log

// Logger receives structured events from the onboarding stack. The
// transport, protocol and crypto layers all report through this one
// interface.
type Logger interface {
	// Log records one event. It is called from connection and session
	// goroutines, so implementations need to be safe for concurrent use
	// and should not block the exchange.
	Log(event Event)
}

// NoopLogger drops every event. The zero value is ready to use; the stack
// falls back to it when no logger is configured.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}
