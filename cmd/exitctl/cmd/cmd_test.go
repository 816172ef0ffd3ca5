package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("TRADE_SINK", "log")
	t.Setenv("ATR_PERIOD", "2")

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestInstrumentsCmd(t *testing.T) {
	out, err := run(t, "instruments")
	require.NoError(t, err)

	assert.Contains(t, out, "KEY")
	for _, key := range []string{"EURUSD", "BTCUSD", "NAS100", "XAUUSD"} {
		assert.Contains(t, out, key)
	}
}

func TestPolicyCmd(t *testing.T) {
	t.Run("sizing", func(t *testing.T) {
		out, err := run(t, "policy", "btcusd", "--score", "80", "--balance", "10000", "--volatility", "400", "--json")
		require.NoError(t, err)

		var got struct {
			Symbol       string `json:"symbol"`
			Blocked      bool   `json:"blocked"`
			StopDistance string `json:"stop_distance"`
			Volume       string `json:"volume"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &got), out)
		assert.Equal(t, "BTCUSD", got.Symbol)
		assert.False(t, got.Blocked)
		assert.Equal(t, "776", got.StopDistance)
		assert.Equal(t, "0.05", got.Volume)
	})

	t.Run("blocked score", func(t *testing.T) {
		out, err := run(t, "policy", "EURUSD", "--score", "10")
		require.NoError(t, err)
		assert.Regexp(t, `blocked\s+true`, out)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		_, err := run(t, "policy", "ETHUSD")
		assert.Error(t, err)
	})
}

func TestReplayCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	stream := `bar,2026-01-05T09:45:00Z,BTCUSD,M5,50000,50200,49800,50000
bar,2026-01-05T09:50:00Z,BTCUSD,M5,50000,50200,49800,50000
bar,2026-01-05T09:55:00Z,BTCUSD,M5,50000,50200,49800,50000
tick,2026-01-05T10:00:00Z,BTCUSD,50000,50000
entry,2026-01-05T10:00:01Z,BTCUSD,LONG,80,breakout
tick,2026-01-05T10:05:00Z,BTCUSD,49000,49000
`
	require.NoError(t, os.WriteFile(path, []byte(stream), 0o644))

	out, err := run(t, "replay", path)
	require.NoError(t, err)

	var stats struct {
		Bars      int `json:"bars"`
		Opened    int `json:"opened"`
		HostFills int `json:"host_fills"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats), out)
	assert.Equal(t, 3, stats.Bars)
	assert.Equal(t, 1, stats.Opened)
	assert.Equal(t, 1, stats.HostFills)
}

func TestReplayCmd_MissingFile(t *testing.T) {
	_, err := run(t, "replay", filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
