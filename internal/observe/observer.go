package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tickerlens/tickerlens/internal/repair"
)

// PhaseObserver records repair pipeline phase outcomes as metrics. It
// satisfies the repair pipeline's Observer interface and is wired in via
// repair.WithObserver.
type PhaseObserver struct {
	metrics *Metrics
}

// NewPhaseObserver returns a PhaseObserver recording to m. If m is nil, the
// package-level default metrics are used.
func NewPhaseObserver(m *Metrics) *PhaseObserver {
	if m == nil {
		m = DefaultMetrics()
	}
	return &PhaseObserver{metrics: m}
}

// ObservePhase implements the repair Observer contract.
func (o *PhaseObserver) ObservePhase(ctx context.Context, phase repair.Phase, valid bool) {
	o.metrics.RepairPhases.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("phase", string(phase)),
			attribute.Bool("valid", valid),
		),
	)
}
