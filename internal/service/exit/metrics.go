package exit

import "github.com/prometheus/client_golang/prometheus"

// Stop move reasons
const (
	reasonBreakeven       = "breakeven"
	reasonBreakevenRepair = "breakeven_repair"
	reasonTrailing        = "trailing"
)

// Host operations
const (
	opPositions    = "positions"
	opClosePartial = "close_partial"
	opModifyStop   = "modify_stop"
	opRecordTrade  = "record_trade"
)

var (
	mtxTP1Fills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exit_tp1_fills_total",
			Help: "TP1 transitions committed",
		},
		[]string{"symbol"},
	)

	mtxStopMoves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exit_stop_moves_total",
			Help: "Stop modifications accepted by the host",
		},
		[]string{"symbol", "reason"},
	)

	mtxHostFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exit_host_failures_total",
			Help: "Host calls that failed and were left for the next event",
		},
		[]string{"symbol", "op"},
	)

	mtxContexts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exit_contexts",
			Help: "Registered position contexts",
		},
		[]string{"symbol"},
	)

	mtxRehydrated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exit_rehydrated_total",
			Help: "Contexts rebuilt from live positions",
		},
		[]string{"symbol", "policy"},
	)

	mtxClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exit_positions_closed_total",
			Help: "Positions the host reported closed",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(mtxTP1Fills, mtxStopMoves, mtxHostFailures)
	prometheus.MustRegister(mtxContexts, mtxRehydrated, mtxClosed)
}
