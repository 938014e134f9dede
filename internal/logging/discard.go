package logging

// discardLogger is a no-op Logger, the Engine's default when no Logger is
// supplied in Options.
type discardLogger struct{}

// Discard is the singleton no-op logger.
var Discard Logger = discardLogger{}

func (discardLogger) Errorf(format string, args ...any) {}
func (discardLogger) Warnf(format string, args ...any)  {}
func (discardLogger) Infof(format string, args ...any)  {}
func (discardLogger) Debugf(format string, args ...any) {}
