package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		development bool
		enabled     zapcore.Level
		disabled    zapcore.Level
	}{
		{name: "production info", level: "info", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel},
		{name: "development debug", level: "debug", development: true, enabled: zapcore.DebugLevel, disabled: zapcore.DebugLevel - 1},
		{name: "warn", level: "WARN", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.development)
			require.NoError(t, err)
			require.True(t, logger.Core().Enabled(tt.enabled))
			require.False(t, logger.Core().Enabled(tt.disabled))
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("chatty", false)
	require.ErrorContains(t, err, `log level "chatty"`)
}
