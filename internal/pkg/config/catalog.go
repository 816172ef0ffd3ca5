package config

import (
	"fmt"
	"sync"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
)

// InstrumentSpec is everything configured for one traded instrument
type InstrumentSpec struct {
	Key      string            `toml:"key"`
	Aliases  []string          `toml:"aliases"`
	Contract sizing.Instrument `toml:"contract"`
	Policy   sizing.Policy     `toml:"policy"`
	Exit     exit.Profile      `toml:"exit"`
}

// Catalog is the validated per-instrument configuration:
// sizing policy registry, contract increments and exit profiles.
type Catalog struct {
	registry *sizing.Registry

	mu          sync.RWMutex
	instruments map[string]sizing.Instrument
	profiles    map[string]exit.Profile
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		registry:    sizing.NewRegistry(),
		instruments: make(map[string]sizing.Instrument),
		profiles:    make(map[string]exit.Profile),
	}
}

// Add validates spec and registers it with its aliases
func (c *Catalog) Add(spec InstrumentSpec) error {
	key := sizing.NormalizeKey(spec.Key)
	if key == "" {
		return fmt.Errorf("%w: empty instrument key", sizing.ErrInvalidInstrument)
	}

	if spec.Policy.Key == "" {
		spec.Policy.Key = key
	}
	if sizing.NormalizeKey(spec.Policy.Key) != key {
		return fmt.Errorf("%w: policy key %q does not match instrument %s", sizing.ErrInvalidPolicy, spec.Policy.Key, key)
	}
	if spec.Contract.Symbol == "" {
		spec.Contract.Symbol = key
	}
	if err := spec.Contract.Validate(); err != nil {
		return err
	}
	if err := spec.Exit.Validate(); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := spec.Policy.Neutral().Targets(spec.Exit.BreakevenOffsetR).Validate(); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	if err := c.registry.Register(spec.Policy, spec.Aliases...); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.instruments[key] = spec.Contract
	c.profiles[key] = spec.Exit
	return nil
}

// Registry exposes the sizing policy registry
func (c *Catalog) Registry() *sizing.Registry {
	return c.registry
}

// Keys returns configured instrument keys, sorted
func (c *Catalog) Keys() []string {
	return c.registry.Keys()
}

// Policy returns the sizing policy for symbol
func (c *Catalog) Policy(symbol string) (sizing.Policy, error) {
	return c.registry.Lookup(symbol)
}

// Instrument returns the contract increments for symbol
func (c *Catalog) Instrument(symbol string) (sizing.Instrument, error) {
	key, err := c.registry.Resolve(symbol)
	if err != nil {
		return sizing.Instrument{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instruments[key], nil
}

// Profile returns the exit profile for symbol
func (c *Catalog) Profile(symbol string) (exit.Profile, error) {
	key, err := c.registry.Resolve(symbol)
	if err != nil {
		return exit.Profile{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profiles[key], nil
}

// Spec reassembles the full configuration for symbol
func (c *Catalog) Spec(symbol string) (InstrumentSpec, error) {
	p, err := c.Policy(symbol)
	if err != nil {
		return InstrumentSpec{}, err
	}
	in, _ := c.Instrument(symbol)
	prof, _ := c.Profile(symbol)
	return InstrumentSpec{Key: p.Key, Contract: in, Policy: p, Exit: prof}, nil
}
