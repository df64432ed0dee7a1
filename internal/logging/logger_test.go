package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "default config",
			config: nil,
		},
		{
			name: "json format",
			config: &Config{
				Level:  LevelInfo,
				Format: "json",
				Output: &bytes.Buffer{},
				Sync:   true,
			},
		},
		{
			name: "text format",
			config: &Config{
				Level:  LevelDebug,
				Format: "text",
				Output: &bytes.Buffer{},
				Sync:   true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Error("NewLogger() returned nil")
			}
		})
	}
}

func syncLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	return NewLogger(&Config{
		Level:   level,
		Format:  "text",
		Output:  buf,
		Sync:    true,
		NoColor: true,
	})
}

func TestLoggerWithCommand(t *testing.T) {
	var buf bytes.Buffer
	logger := syncLogger(&buf, LevelDebug)

	cmdLogger := logger.WithCommand("RANDOM_NUMBER_GEN")
	cmdLogger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "cmd=RANDOM_NUMBER_GEN") {
		t.Errorf("Expected cmd=RANDOM_NUMBER_GEN in output, got: %s", output)
	}

	// Phase context stacks on top of command context
	buf.Reset()
	phaseLogger := cmdLogger.WithPhase(2)
	phaseLogger.Info("phase message")

	output = buf.String()
	if !strings.Contains(output, "cmd=RANDOM_NUMBER_GEN") {
		t.Errorf("Expected cmd context retained, got: %s", output)
	}
	if !strings.Contains(output, "phase=2") {
		t.Errorf("Expected phase=2 in output, got: %s", output)
	}
}

func TestLoggerWithChannel(t *testing.T) {
	var buf bytes.Buffer
	logger := syncLogger(&buf, LevelDebug)

	chLogger := logger.WithChannel("shmem")
	chLogger.Debug("polling completion slot")

	output := buf.String()
	if !strings.Contains(output, "channel=shmem") {
		t.Errorf("Expected channel=shmem in output, got: %s", output)
	}
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := syncLogger(&buf, LevelDebug)

	testErr := errors.New("test error")
	errorLogger := logger.WithError(testErr)
	errorLogger.Error("operation failed")

	output := buf.String()
	if !strings.Contains(output, "test error") {
		t.Errorf("Expected 'test error' in output, got: %s", output)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := syncLogger(&buf, LevelWarn)

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("visible warning")

	output := buf.String()
	if strings.Contains(output, "hidden debug") || strings.Contains(output, "hidden info") {
		t.Errorf("Expected debug/info filtered at warn level, got: %s", output)
	}
	if !strings.Contains(output, "visible warning") {
		t.Errorf("Expected warning in output, got: %s", output)
	}
}

func TestDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(syncLogger(&buf, LevelDebug))

	Default().Info("default message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "default message") {
		t.Errorf("Expected default message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Expected key=value, got: %s", output)
	}
}
