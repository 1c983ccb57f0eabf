package logger

import (
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, log.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, log.WarnLevel, parseLogLevel("WARN"))
	assert.Equal(t, log.InfoLevel, parseLogLevel("unknown"))
}

func TestNewStyledLogger(t *testing.T) {
	component := NewStyledLogger("Solver")
	require.NotNil(t, component)

	// Component loggers inherit the global level so a --log-level flag
	// applies to them as well.
	assert.Equal(t, Logger.GetLevel(), component.GetLevel())
}

func TestConfigure_TestMode(t *testing.T) {
	err := Configure("debug", "", true)
	require.NoError(t, err)
	assert.Equal(t, log.InfoLevel, Logger.GetLevel())
}
