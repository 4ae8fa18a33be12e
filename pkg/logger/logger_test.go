package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultConfig(t *testing.T) {
	l := New(Config{})
	require.NotNil(t, l)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestNew_AllLogLevels(t *testing.T) {
	cases := []struct {
		level    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tc := range cases {
		New(Config{Level: tc.level})
		assert.Equal(t, tc.expected, zerolog.GlobalLevel(), "level=%s", tc.level)
	}
}

func TestNew_PrettyOutput(t *testing.T) {
	l := New(Config{Level: "info", Pretty: true})
	require.NotNil(t, l)
}

func TestNew_TimestampFormat(t *testing.T) {
	New(Config{})
	assert.Equal(t, "2006-01-02T15:04:05Z07:00", zerolog.TimeFieldFormat)
}

func TestSetGlobalLogger_ReplacesExisting(t *testing.T) {
	debugLogger := New(Config{Level: "debug"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	errorLogger := New(Config{Level: "error"})
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())

	SetGlobalLogger(errorLogger)
	SetGlobalLogger(debugLogger)
}
