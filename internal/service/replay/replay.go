package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
	"github.com/Estalvo/GeminiV26-sub001/internal/service/entry"
	exitsvc "github.com/Estalvo/GeminiV26-sub001/internal/service/exit"
)

// ErrMalformedEvent marks a row that cannot be parsed
var ErrMalformedEvent = errors.New("malformed replay event")

// Event kinds
const (
	KindTick  = "tick"
	KindBar   = "bar"
	KindEntry = "entry"
)

// Event is one parsed row of a replay stream.
//
//	tick,<ts>,<symbol>,<bid>,<ask>
//	bar,<ts>,<symbol>,<timeframe>,<open>,<high>,<low>,<close>
//	entry,<ts>,<symbol>,<LONG|SHORT>,<score>[,<entry_type>[,<reason>]]
type Event struct {
	Line  int
	Kind  string
	TS    time.Time
	Quote exit.Quote
	Bar   exit.Bar
	Entry entry.Request
}

// Host receives quotes before the engines see them (the paper host fills stops and targets)
type Host interface {
	SetQuote(q exit.Quote) []string
}

// Engines resolves the engine managing a symbol; implemented by *entry.Service
type Engines interface {
	Engine(symbol string) (*exitsvc.Engine, error)
	Open(ctx context.Context, req entry.Request) (*exit.Context, error)
}

// Stats summarizes a replay run
type Stats struct {
	Ticks         int `json:"ticks"`
	Bars          int `json:"bars"`
	Entries       int `json:"entries"`
	Opened        int `json:"opened"`
	Skipped       int `json:"skipped"`
	HostFills     int `json:"host_fills"`
	UnknownSymbol int `json:"unknown_symbol"`
}

// Runner drives engines from an event stream
type Runner struct {
	host    Host
	engines Engines
}

// NewRunner creates a runner; host may be nil when quotes go straight to the engines
func NewRunner(host Host, engines Engines) *Runner {
	return &Runner{host: host, engines: engines}
}

// Run reads events from r until EOF. Malformed rows abort the run;
// blocked entries and unconfigured symbols are counted and skipped.
func (rn *Runner) Run(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats

	reader := NewReader(r)
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}
		if err := rn.Apply(ctx, ev, &stats); err != nil {
			return stats, fmt.Errorf("line %d: %w", ev.Line, err)
		}
	}

	log.Info().
		Int("ticks", stats.Ticks).
		Int("bars", stats.Bars).
		Int("entries", stats.Entries).
		Int("opened", stats.Opened).
		Int("skipped", stats.Skipped).
		Msg("✅ Replay finished")

	return stats, nil
}

// Apply dispatches a single event
func (rn *Runner) Apply(ctx context.Context, ev Event, stats *Stats) error {
	var symbol string
	switch ev.Kind {
	case KindTick:
		symbol = ev.Quote.Symbol
	case KindBar:
		symbol = ev.Bar.Symbol
	default:
		symbol = ev.Entry.Symbol
	}

	engine, err := rn.engines.Engine(symbol)
	if err != nil {
		if errors.Is(err, sizing.ErrUnconfiguredInstrument) {
			stats.UnknownSymbol++
			log.Debug().Int("line", ev.Line).Str("symbol", symbol).Msg("Skipping event for unconfigured symbol")
			return nil
		}
		return err
	}

	switch ev.Kind {
	case KindTick:
		stats.Ticks++
		q := ev.Quote
		q.Symbol = engine.Symbol()
		if rn.host != nil {
			stats.HostFills += len(rn.host.SetQuote(q))
		}
		return engine.OnTick(ctx, q)

	case KindBar:
		stats.Bars++
		bar := ev.Bar
		bar.Symbol = engine.Symbol()
		return engine.OnBar(ctx, bar)

	default:
		stats.Entries++
		if _, err := rn.engines.Open(ctx, ev.Entry); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stats.Skipped++
			log.Info().Err(err).Int("line", ev.Line).Str("symbol", symbol).Msg("Replay entry not opened")
			return nil
		}
		stats.Opened++
		return nil
	}
}

// Reader parses replay rows from CSV
type Reader struct {
	csv *csv.Reader
}

// NewReader creates a reader; lines starting with '#' are comments
func NewReader(r io.Reader) *Reader {
	c := csv.NewReader(r)
	c.Comment = '#'
	c.FieldsPerRecord = -1
	c.TrimLeadingSpace = true
	return &Reader{csv: c}
}

// Next returns the next event or io.EOF
func (rd *Reader) Next() (Event, error) {
	record, err := rd.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	line, _ := rd.csv.FieldPos(0)
	return parse(line, record)
}

func parse(line int, f []string) (Event, error) {
	bad := func(format string, args ...any) (Event, error) {
		return Event{}, fmt.Errorf("%w: line %d: %s", ErrMalformedEvent, line, fmt.Sprintf(format, args...))
	}
	if len(f) < 3 {
		return bad("want at least kind,ts,symbol")
	}

	kind := strings.ToLower(strings.TrimSpace(f[0]))
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(f[1]))
	if err != nil {
		return bad("timestamp %q", f[1])
	}
	symbol := strings.TrimSpace(f[2])
	ev := Event{Line: line, Kind: kind, TS: ts}

	switch kind {
	case KindTick:
		if len(f) != 5 {
			return bad("tick wants 5 fields, got %d", len(f))
		}
		p, err := decimals(f[3:5])
		if err != nil {
			return bad("%v", err)
		}
		ev.Quote = exit.Quote{Symbol: symbol, Bid: p[0], Ask: p[1], TS: ts}

	case KindBar:
		if len(f) != 8 {
			return bad("bar wants 8 fields, got %d", len(f))
		}
		p, err := decimals(f[4:8])
		if err != nil {
			return bad("%v", err)
		}
		ev.Bar = exit.Bar{
			Symbol:    symbol,
			Timeframe: strings.TrimSpace(f[3]),
			Open:      p[0],
			High:      p[1],
			Low:       p[2],
			Close:     p[3],
			CloseTS:   ts,
		}

	case KindEntry:
		if len(f) < 5 || len(f) > 7 {
			return bad("entry wants 5 to 7 fields, got %d", len(f))
		}
		score, err := strconv.Atoi(strings.TrimSpace(f[4]))
		if err != nil {
			return bad("score %q", f[4])
		}
		ev.Entry = entry.Request{
			Symbol:    symbol,
			Direction: exit.Direction(strings.ToUpper(strings.TrimSpace(f[3]))),
			Score:     score,
		}
		if len(f) > 5 {
			ev.Entry.EntryType = strings.TrimSpace(f[5])
		}
		if len(f) > 6 {
			ev.Entry.Reason = strings.TrimSpace(f[6])
		}

	default:
		return bad("unknown kind %q", f[0])
	}

	return ev, nil
}

func decimals(fields []string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(fields))
	for i, s := range fields {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("price %q", s)
		}
		out[i] = d
	}
	return out, nil
}
