package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
)

func TestStore_SymbolOverwrite(t *testing.T) {
	s := NewStore()

	s.RegisterPending("EURUSD", exit.Metadata{EntryType: "breakout", Reason: "breakout", Confidence: 70})
	s.RegisterPending("EURUSD", exit.Metadata{EntryType: "pullback", Reason: "pullback", Confidence: 60})

	meta, ok := s.Pending("EURUSD")
	require.True(t, ok)
	assert.Equal(t, "pullback", meta.Reason)

	require.True(t, s.BindToPosition("1001", "EURUSD"))

	bound, ok := s.Lookup("1001")
	require.True(t, ok)
	assert.Equal(t, "pullback", bound.Reason)

	_, ok = s.Pending("EURUSD")
	assert.False(t, ok, "bound entry leaves the pending side")
	assert.Empty(t, s.Snapshot(), "breakout metadata is gone")
}

func TestStore_BindWithoutPending(t *testing.T) {
	s := NewStore()
	assert.False(t, s.BindToPosition("1", "XAUUSD"))
	_, ok := s.Lookup("1")
	assert.False(t, ok)
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	s := NewStore()
	s.RegisterPending("BTCUSD", exit.Metadata{Reason: "trend"})
	require.True(t, s.BindToPosition("7", "BTCUSD"))

	s.Remove("7")
	s.Remove("7")
	_, ok := s.Lookup("7")
	assert.False(t, ok)
}

func TestStore_DiscardOwn(t *testing.T) {
	s := NewStore()
	first := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Millisecond)

	s.RegisterPending("NAS100", exit.Metadata{Reason: "gap", CreatedAt: first})
	s.RegisterPending("NAS100", exit.Metadata{Reason: "fade", CreatedAt: second})

	assert.False(t, s.DiscardOwn("NAS100", first), "replaced entry is not ours to drop")
	meta, ok := s.Pending("NAS100")
	require.True(t, ok)
	assert.Equal(t, "fade", meta.Reason)

	assert.True(t, s.DiscardOwn("nas100", second))
	assert.False(t, s.BindToPosition("9", "NAS100"))
	assert.False(t, s.DiscardOwn("NAS100", second))
}

func TestStore_SymbolKeysNormalized(t *testing.T) {
	s := NewStore()
	s.RegisterPending("eurusd", exit.Metadata{Reason: "breakout"})
	s.RegisterPending(" EURUSD.m", exit.Metadata{Reason: "pullback"})

	snap := s.Snapshot()
	require.Len(t, snap, 1, "spellings share one slot")
	assert.Equal(t, "EURUSD", snap[0].Symbol)

	_, ok := s.Pending("EurUsd")
	assert.True(t, ok)

	require.True(t, s.BindToPosition("42", "EURUSD"))
	meta, ok := s.Lookup("42")
	require.True(t, ok)
	assert.Equal(t, "pullback", meta.Reason)

	token := s.RegisterWithToken("xauusd", exit.Metadata{Reason: "trend"})
	snap = s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, token, snap[0].Token)
	assert.Equal(t, "XAUUSD", snap[0].Symbol)
}

func TestStore_Tokens(t *testing.T) {
	s := NewStore()

	a := s.RegisterWithToken("EURUSD", exit.Metadata{Reason: "breakout"})
	b := s.RegisterWithToken("EURUSD", exit.Metadata{Reason: "pullback"})
	require.NotEqual(t, a, b)
	assert.Len(t, s.Snapshot(), 2, "same-symbol tokens do not overwrite")

	require.True(t, s.BindToken(a, "1"))
	require.True(t, s.BindToken(b, "2"))
	assert.False(t, s.BindToken(a, "3"), "token binds once")

	m1, _ := s.Lookup("1")
	m2, _ := s.Lookup("2")
	assert.Equal(t, "breakout", m1.Reason)
	assert.Equal(t, "pullback", m2.Reason)

	c := s.RegisterWithToken("XAUUSD", exit.Metadata{})
	s.DiscardToken(c)
	assert.False(t, s.BindToken(c, "4"))
}
