package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	prod, err := New(false)
	if err != nil {
		t.Fatal(err)
	}
	if prod.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("production logger must not log debug")
	}
	dev, err := New(true)
	if err != nil {
		t.Fatal(err)
	}
	if !dev.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug logger must log debug")
	}
	if FxLogger(dev) == nil {
		t.Fatal("nil fx logger")
	}
}
