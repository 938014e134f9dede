package logging

import "testing"

func TestDiscardLoggerDoesNotPanic(t *testing.T) {
	Discard.Errorf("x %d", 1)
	Discard.Warnf("x %d", 1)
	Discard.Infof("x %d", 1)
	Discard.Debugf("x %d", 1)
}

func TestStdLoggerDoesNotPanic(t *testing.T) {
	l := New("test")
	l.Errorf("boom: %v", "err")
	l.Infof("starting up on %s", "/data")
}
