package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// instrumentsFile is the TOML layout:
//
//	[[instrument]]
//	key = "EURUSD"
//	aliases = ["EURUSD.pro"]
//	  [instrument.contract] ...
//	  [instrument.policy] ...
//	  [instrument.exit] ...
type instrumentsFile struct {
	Instruments []InstrumentSpec `toml:"instrument"`
}

// LoadInstruments builds a catalog from a TOML file.
// An empty path returns the built-in catalog. Any invalid entry aborts the load.
func LoadInstruments(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}

	var f instrumentsFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode instruments file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warn().Str("path", path).Interface("keys", undecoded).Msg("Unknown keys in instruments file")
	}
	return buildCatalog(f.Instruments)
}

// DecodeInstruments builds a catalog from TOML text
func DecodeInstruments(data string) (*Catalog, error) {
	var f instrumentsFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode instruments: %w", err)
	}
	return buildCatalog(f.Instruments)
}

func buildCatalog(specs []InstrumentSpec) (*Catalog, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no instruments configured")
	}

	c := NewCatalog()
	for i, spec := range specs {
		if err := c.Add(spec); err != nil {
			return nil, fmt.Errorf("instrument #%d (%s): %w", i+1, spec.Key, err)
		}
	}

	log.Info().Strs("instruments", c.Keys()).Msg("Instrument catalog loaded")
	return c, nil
}
