package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"remit/pkg/domain"
)

var latencyBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the ledger.
// Tracks operation outcomes, fee flow and the pause switch.
type Metrics struct {
	OperationDuration *prometheus.HistogramVec
	OperationResults  *prometheus.CounterVec
	FeesCollected     prometheus.Counter
	VolumeSettled     prometheus.Counter
	UsersVerified     prometheus.Counter
	Paused            prometheus.Gauge
}

// New registers all ledger metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remit_ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations, including settlement",
			Buckets: latencyBuckets,
		}, []string{"operation"}),
		OperationResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "remit_ledger_operations_total",
			Help: "Ledger operations by outcome; result is ok or the failure name",
		}, []string{"operation", "result"}),
		FeesCollected: f.NewCounter(prometheus.CounterOpts{
			Name: "remit_ledger_fees_collected_total",
			Help: "Fees forwarded to the fee collector, in smallest units (approximate above 2^53)",
		}),
		VolumeSettled: f.NewCounter(prometheus.CounterOpts{
			Name: "remit_ledger_volume_settled_total",
			Help: "Principal paid to recipients on completion, in smallest units (approximate above 2^53)",
		}),
		UsersVerified: f.NewCounter(prometheus.CounterOpts{
			Name: "remit_ledger_users_verified_total",
			Help: "Verification grants, counting each batch entry",
		}),
		Paused: f.NewGauge(prometheus.GaugeOpts{
			Name: "remit_ledger_paused",
			Help: "1 while transaction creation is paused",
		}),
	}
}

// ObserveOperation records the duration and outcome of one ledger call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(op string, start time.Time, result string) {
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.OperationResults.WithLabelValues(op, result).Inc()
}

func (m *Metrics) AddFees(fee domain.Amount) {
	m.FeesCollected.Add(fee.Float64())
}

func (m *Metrics) AddVolume(amount domain.Amount) {
	m.VolumeSettled.Add(amount.Float64())
}

func (m *Metrics) AddVerified(n int) {
	m.UsersVerified.Add(float64(n))
}

func (m *Metrics) SetPaused(paused bool) {
	if paused {
		m.Paused.Set(1)
		return
	}
	m.Paused.Set(0)
}
