package entry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
	exitsvc "github.com/Estalvo/GeminiV26-sub001/internal/service/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/service/pending"
)

// ErrEntryBlocked means the sizing policy forbids this entry.
// It is a "do not trade" result, not a failure to retry.
var ErrEntryBlocked = errors.New("entry blocked by sizing policy")

// Blocked reasons
const (
	blockedPolicy     = "policy"
	blockedVolatility = "volatility"
	blockedVolume     = "volume"
)

var mtxBlocked = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "entry_blocked_total",
		Help: "Entry attempts skipped before order placement",
	},
	[]string{"symbol", "reason"},
)

func init() {
	prometheus.MustRegister(mtxBlocked)
}

// Request is a directional entry decision with its confidence score
type Request struct {
	Symbol    string
	Direction exit.Direction
	Score     int
	EntryType string
	Reason    string
}

// SymbolResolver maps broker symbols and aliases onto configured keys
type SymbolResolver interface {
	Resolve(symbol string) (string, error)
}

// Config wires the entry service
type Config struct {
	Host       exit.ExecutionHost
	Account    exit.AccountReader
	Volatility exit.VolatilitySource
	Store      *pending.Store
	Engines    []*exitsvc.Engine
	Resolver   SymbolResolver // optional

	// KeyBySymbol parks metadata under the symbol instead of a per-signal token
	KeyBySymbol bool
}

// Service sizes, places and registers new positions
type Service struct {
	host        exit.ExecutionHost
	account     exit.AccountReader
	volatility  exit.VolatilitySource
	store       *pending.Store
	resolver    SymbolResolver
	engines     map[string]*exitsvc.Engine
	keyBySymbol bool
}

// NewService creates an entry service over the given engines
func NewService(cfg Config) (*Service, error) {
	if cfg.Host == nil || cfg.Account == nil || cfg.Store == nil {
		return nil, errors.New("entry service requires host, account and pending store")
	}
	if len(cfg.Engines) == 0 {
		return nil, fmt.Errorf("%w: no exit engines", sizing.ErrUnconfiguredInstrument)
	}

	engines := make(map[string]*exitsvc.Engine, len(cfg.Engines))
	for _, e := range cfg.Engines {
		engines[sizing.NormalizeKey(e.Symbol())] = e
	}

	return &Service{
		host:        cfg.Host,
		account:     cfg.Account,
		volatility:  cfg.Volatility,
		store:       cfg.Store,
		resolver:    cfg.Resolver,
		engines:     engines,
		keyBySymbol: cfg.KeyBySymbol,
	}, nil
}

// Engine returns the exit engine that manages symbol
func (s *Service) Engine(symbol string) (*exitsvc.Engine, error) {
	key := sizing.NormalizeKey(symbol)
	if s.resolver != nil {
		resolved, err := s.resolver.Resolve(symbol)
		if err != nil {
			return nil, err
		}
		key = resolved
	}
	e, ok := s.engines[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sizing.ErrUnconfiguredInstrument, symbol)
	}
	return e, nil
}

// Engines returns every managed engine ordered by symbol
func (s *Service) Engines() []*exitsvc.Engine {
	keys := make([]string, 0, len(s.engines))
	for k := range s.engines {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*exitsvc.Engine, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.engines[k])
	}
	return out
}

// Open evaluates the sizing policy for req, places the order and registers
// the filled position with its exit engine. Blocked entries never reach the host.
func (s *Service) Open(ctx context.Context, req Request) (*exit.Context, error) {
	if !req.Direction.Valid() {
		return nil, fmt.Errorf("%w: %q", exit.ErrInvalidDirection, req.Direction)
	}
	engine, err := s.Engine(req.Symbol)
	if err != nil {
		return nil, err
	}
	symbol := engine.Symbol()
	instrument := engine.Instrument()

	res := engine.Policy().Evaluate(req.Score, req.EntryType)
	if res.Blocked() {
		mtxBlocked.WithLabelValues(symbol, blockedPolicy).Inc()
		log.Info().
			Str("symbol", symbol).
			Int("score", req.Score).
			Float64("risk_percent", res.RiskPercent).
			Msg("Entry blocked by sizing policy")
		return nil, fmt.Errorf("%w: score %d", ErrEntryBlocked, req.Score)
	}

	stopDistance, err := s.stopDistance(symbol, instrument, res.StopATRMultiplier)
	if err != nil {
		mtxBlocked.WithLabelValues(symbol, blockedVolatility).Inc()
		return nil, err
	}

	balance, err := s.account.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	volume, err := instrument.ComputeVolume(balance, res.RiskPercent, stopDistance, res.LotCap)
	if err != nil {
		mtxBlocked.WithLabelValues(symbol, blockedVolume).Inc()
		log.Info().Err(err).Str("symbol", symbol).Msg("Entry skipped by volume sizing")
		return nil, err
	}

	meta := exit.Metadata{
		EntryType:  req.EntryType,
		Reason:     req.Reason,
		Confidence: req.Score,
		CreatedAt:  time.Now(),
	}
	var token string
	if s.keyBySymbol {
		s.store.RegisterPending(symbol, meta)
	} else {
		token = s.store.RegisterWithToken(symbol, meta)
	}

	pos, err := s.host.PlaceMarketOrder(ctx, exit.OrderRequest{
		Symbol:         symbol,
		Direction:      req.Direction,
		Volume:         volume,
		StopDistance:   stopDistance,
		TargetDistance: instrument.RoundPrice(stopDistance.Mul(decimal.NewFromFloat(res.TP2R))),
		Comment:        req.Reason,
	})
	if err != nil {
		s.discard(symbol, token, meta.CreatedAt)
		return nil, fmt.Errorf("place order %s: %w", symbol, err)
	}

	c, err := exit.NewContext(exit.ContextParams{
		PositionID:   pos.PositionID,
		Symbol:       symbol,
		Direction:    pos.Direction,
		EntryPrice:   pos.EntryPrice,
		EntryTime:    pos.OpenedAt,
		RiskDistance: stopDistance,
		Volume:       pos.Volume,
		StopPrice:    pos.StopPrice,
		TargetPrice:  pos.TargetPrice,
		Targets:      res.Targets(engine.Profile().BreakevenOffsetR),
	})
	if err != nil {
		// the position is live; rehydration can still pick it up
		s.discard(symbol, token, meta.CreatedAt)
		return nil, fmt.Errorf("build context for %s: %w", pos.PositionID, err)
	}

	// in symbol mode a later signal may have replaced ours before the fill;
	// the context carries whatever the store actually bound
	if s.bind(pos.PositionID, symbol, token) {
		if bound, ok := s.store.Lookup(pos.PositionID); ok {
			c.Meta = &bound
		}
	}
	if err := engine.RegisterContext(c); err != nil {
		return nil, err
	}

	log.Info().
		Str("symbol", symbol).
		Str("position_id", pos.PositionID).
		Str("direction", pos.Direction.String()).
		Str("entry", pos.EntryPrice.String()).
		Str("volume", pos.Volume.String()).
		Str("stop_distance", stopDistance.String()).
		Int("score", req.Score).
		Msg("✅ Position opened and registered")

	return c.Clone(), nil
}

func (s *Service) stopDistance(symbol string, in sizing.Instrument, multiplier float64) (decimal.Decimal, error) {
	if s.volatility == nil {
		return decimal.Zero, exit.ErrVolatilityUnavailable
	}
	vol, ok := s.volatility.Volatility(symbol)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", exit.ErrVolatilityUnavailable, symbol)
	}
	d := in.RoundPrice(vol.Mul(decimal.NewFromFloat(multiplier)))
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", sizing.ErrInvalidStopDistance, d)
	}
	return d, nil
}

func (s *Service) bind(positionID, symbol, token string) bool {
	if s.keyBySymbol {
		return s.store.BindToPosition(positionID, symbol)
	}
	return s.store.BindToken(token, positionID)
}

func (s *Service) discard(symbol, token string, createdAt time.Time) {
	if s.keyBySymbol {
		s.store.DiscardOwn(symbol, createdAt)
		return
	}
	s.store.DiscardToken(token)
}
