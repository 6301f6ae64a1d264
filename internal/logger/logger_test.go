package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
}

func TestNewLogger(t *testing.T) {
	l := NewLogger(true)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l = NewLogger(false)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestWrap(t *testing.T) {
	w := Wrap(nil)
	assert.NotNil(t, w.GetZapLogger())

	child := w.With(zap.String("item", "x"))
	assert.NotNil(t, child)
	child.Info("does not panic")
}
