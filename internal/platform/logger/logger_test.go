package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json records carry the service name", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, slog.LevelInfo, "json")
		log.Info("name registered", "name", "alice123")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "namereg", line["service"])
		assert.Equal(t, "alice123", line["name"])
	})

	t.Run("level filters lower records", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, slog.LevelWarn, "text")
		log.Info("ignored")
		assert.Zero(t, buf.Len())

		log.Warn("kept")
		assert.Contains(t, buf.String(), "msg=kept")
	})
}
