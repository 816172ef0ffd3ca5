package pending

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
)

// Entry is one parked metadata record
type Entry struct {
	Token  string        `json:"token,omitempty"`
	Symbol string        `json:"symbol"`
	Meta   exit.Metadata `json:"meta"`
}

// Store parks entry metadata between the trade decision and the host fill.
//
// Symbol-keyed entries follow last-write-wins: a second registration for the
// same symbol replaces the first before it binds. Symbols are compared by
// their normalized key, so "eurusd" and "EURUSD.m" share a slot. Token-keyed
// entries are independent of each other and never overwrite.
type Store struct {
	mu       sync.Mutex
	bySymbol map[string]exit.Metadata
	byToken  map[string]Entry
	bound    map[string]exit.Metadata
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		bySymbol: make(map[string]exit.Metadata),
		byToken:  make(map[string]Entry),
		bound:    make(map[string]exit.Metadata),
	}
}

// RegisterPending parks meta under symbol, overwriting any unbound entry
func (s *Store) RegisterPending(symbol string, meta exit.Metadata) {
	symbol = sizing.NormalizeKey(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, exists := s.bySymbol[symbol]; exists {
		log.Warn().
			Str("symbol", symbol).
			Str("dropped_reason", prev.Reason).
			Str("dropped_entry_type", prev.EntryType).
			Str("new_reason", meta.Reason).
			Msg("Pending entry metadata overwritten before bind")
	}
	s.bySymbol[symbol] = meta
}

// BindToPosition moves the pending entry for symbol onto positionID.
// Returns false when nothing was pending.
func (s *Store) BindToPosition(positionID, symbol string) bool {
	symbol = sizing.NormalizeKey(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.bySymbol[symbol]
	if !ok {
		return false
	}
	delete(s.bySymbol, symbol)
	s.bound[positionID] = meta

	log.Debug().
		Str("symbol", symbol).
		Str("position_id", positionID).
		Str("reason", meta.Reason).
		Msg("Entry metadata bound")
	return true
}

// RegisterWithToken parks meta under a fresh token and returns it
func (s *Store) RegisterWithToken(symbol string, meta exit.Metadata) string {
	token := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byToken[token] = Entry{Token: token, Symbol: sizing.NormalizeKey(symbol), Meta: meta}
	return token
}

// BindToken moves the entry parked under token onto positionID
func (s *Store) BindToken(token, positionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byToken[token]
	if !ok {
		return false
	}
	delete(s.byToken, token)
	s.bound[positionID] = e.Meta
	return true
}

// DiscardToken drops a token entry whose order never filled
func (s *Store) DiscardToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byToken, token)
}

// Lookup returns the metadata bound to positionID
func (s *Store) Lookup(positionID string) (exit.Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.bound[positionID]
	return meta, ok
}

// Remove drops the bound entry for positionID (idempotent)
func (s *Store) Remove(positionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bound, positionID)
}

// Pending returns the unbound symbol-keyed entry for symbol
func (s *Store) Pending(symbol string) (exit.Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.bySymbol[sizing.NormalizeKey(symbol)]
	return meta, ok
}

// DiscardOwn drops the unbound entry for symbol only if it is still the one
// registered at createdAt. A later registration for the same symbol survives.
func (s *Store) DiscardOwn(symbol string, createdAt time.Time) bool {
	symbol = sizing.NormalizeKey(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.bySymbol[symbol]
	if !ok || !meta.CreatedAt.Equal(createdAt) {
		return false
	}
	delete(s.bySymbol, symbol)
	return true
}

// Snapshot lists every unbound entry, symbol-keyed first, sorted
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.bySymbol)+len(s.byToken))
	for sym, meta := range s.bySymbol {
		out = append(out, Entry{Symbol: sym, Meta: meta})
	}
	for _, e := range s.byToken {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Token == "") != (out[j].Token == "") {
			return out[i].Token == ""
		}
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Token < out[j].Token
	})
	return out
}
