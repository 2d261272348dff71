package logging

import "testing"

type captureLogger struct {
	debugs, infos, warns, errors int
}

func (c *captureLogger) Debug(string, ...any) { c.debugs++ }
func (c *captureLogger) Info(string, ...any)  { c.infos++ }
func (c *captureLogger) Warn(string, ...any)  { c.warns++ }
func (c *captureLogger) Error(string, ...any) { c.errors++ }

func TestOrNopHandlesNilInterface(t *testing.T) {
	logger := OrNop(nil)
	// Must not panic.
	logger.Info("hello %s", "world")
}

func TestOrNopHandlesTypedNil(t *testing.T) {
	var typed *captureLogger
	logger := OrNop(typed)
	logger.Error("boom")
}

func TestMultiFansOutToAllLoggers(t *testing.T) {
	a := &captureLogger{}
	b := &captureLogger{}
	logger := Multi(a, nil, b)

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	for _, c := range []*captureLogger{a, b} {
		if c.debugs != 1 || c.infos != 1 || c.warns != 1 || c.errors != 1 {
			t.Errorf("expected one call per level, got %+v", c)
		}
	}
}

func TestMultiFlattensNested(t *testing.T) {
	a := &captureLogger{}
	b := &captureLogger{}
	inner := Multi(a, b)
	outer := Multi(inner).(*multiLogger)
	if len(outer.loggers) != 2 {
		t.Errorf("expected flattened loggers, got %d", len(outer.loggers))
	}
}
