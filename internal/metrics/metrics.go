package metrics

import "expvar"

var (
	OrdersFilled     = expvar.NewInt("orders_filled")
	OrdersCancelled  = expvar.NewInt("orders_cancelled")
	OrdersRejected   = expvar.NewInt("orders_rejected")
	PositionsOpened  = expvar.NewInt("positions_opened")
	PositionsClosed  = expvar.NewInt("positions_closed")
	TradesRecorded   = expvar.NewInt("trades_recorded")
	SweepRuns        = expvar.NewInt("sweep_runs")
	AuditAppends     = expvar.NewInt("audit_appends")
	RetriesExhausted = expvar.NewInt("retries_exhausted")
)
