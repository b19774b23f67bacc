package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.Info().Str("merchant_id", "m-1").Msg("balance read")

	var output map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &output)
	require.NoError(t, err, "logger output should be valid JSON")

	assert.Equal(t, "balance read", output["message"])
	assert.Equal(t, "m-1", output["merchant_id"])
	assert.Equal(t, "info", output["level"])
	assert.Equal(t, ServiceName, output["service"])
	assert.Contains(t, output, "time", "should include timestamp")
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewWithWriter("info", &buf), "withdrawals")

	log.Info().Msg("approved")

	var output map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &output))
	assert.Equal(t, "withdrawals", output["component"])
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		level    string
		emit     func(l zerolog.Logger)
		expected bool
	}{
		{"debug", func(l zerolog.Logger) { l.Debug().Msg("x") }, true},
		{"info", func(l zerolog.Logger) { l.Debug().Msg("x") }, false},
		{"WARN", func(l zerolog.Logger) { l.Info().Msg("x") }, false},
		{"warn", func(l zerolog.Logger) { l.Warn().Msg("x") }, true},
		{"error", func(l zerolog.Logger) { l.Warn().Msg("x") }, false},
		{"error", func(l zerolog.Logger) { l.Error().Msg("x") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			tt.emit(NewWithWriter(tt.level, &buf))
			assert.Equal(t, tt.expected, buf.Len() > 0)
		})
	}
}

func TestNew_InvalidLevel_DefaultsToInfo(t *testing.T) {
	for _, level := range []string{"invalid", ""} {
		var buf bytes.Buffer
		log := NewWithWriter(level, &buf)

		log.Debug().Msg("should not appear")
		assert.Empty(t, buf.String(), "invalid level should default to info, filtering debug")

		log.Info().Msg("should appear")
		assert.NotEmpty(t, buf.String())
	}
}

func TestNew_PrettyMode(t *testing.T) {
	log := New("info", true)
	log.Info().Msg("pretty mode test")
}
