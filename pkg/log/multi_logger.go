package log

// MultiLogger fans one event stream out to several sinks, typically a
// SlogAdapter for the console next to a FileLogger capture.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger combines the given loggers into one.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

// Log forwards the event to every sink in order.
func (m *MultiLogger) Log(event Event) {
	for _, s := range m.sinks {
		s.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
