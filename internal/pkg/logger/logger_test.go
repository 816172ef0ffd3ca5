package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_InvalidLevel(t *testing.T) {
	err := Init(Config{Level: "loud", Format: "json"})
	assert.Error(t, err)
}

func TestErrorOnly(t *testing.T) {
	var buf bytes.Buffer
	w := errorOnly{&buf}

	n, err := w.WriteLevel(zerolog.InfoLevel, []byte("info\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Empty(t, buf.String())

	_, err = w.WriteLevel(zerolog.ErrorLevel, []byte("boom\n"))
	require.NoError(t, err)
	assert.Equal(t, "boom\n", buf.String())
}

func TestNewWriter_JSONConsole(t *testing.T) {
	var buf bytes.Buffer
	w, err := newWriter(Config{Format: "json"}, &buf)
	require.NoError(t, err)

	l := zerolog.New(w)
	l.Info().Str("symbol", "EURUSD").Msg("tick")
	assert.Contains(t, buf.String(), `"symbol":"EURUSD"`)
}

func TestChannel_File(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{FileEnabled: true, FilePath: dir, RotationSize: 1, RetentionDays: 1}

	l := Channel(cfg, ChannelTrades)
	l.Info().Str("position_id", "777").Msg("Trade closed")

	data, err := os.ReadFile(filepath.Join(dir, "trades.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"trades"`)
	assert.Contains(t, string(data), `"position_id":"777"`)
}
