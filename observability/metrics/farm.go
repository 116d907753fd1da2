package metrics

import (
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"yieldfarm/core/events"
)

// FarmMetrics tracks farm activity. It implements events.Emitter so it can be
// attached next to any other subscriber.
type FarmMetrics struct {
	events      *prometheus.CounterVec
	deposited   *prometheus.CounterVec
	withdrawn   *prometheus.CounterVec
	fees        *prometheus.CounterVec
	rewardsPaid *prometheus.CounterVec
	shortfall   *prometheus.CounterVec
	forfeited   *prometheus.CounterVec
	poolWeight  *prometheus.GaugeVec
	miningStart prometheus.Gauge
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	checkpoints *prometheus.CounterVec
}

var (
	farmMetricsOnce sync.Once
	farmRegistry    *FarmMetrics
)

// Farm returns the lazily-initialised metrics registered on the default
// prometheus registerer.
func Farm() *FarmMetrics {
	farmMetricsOnce.Do(func() {
		farmRegistry = NewFarm(prometheus.DefaultRegisterer)
	})
	return farmRegistry
}

// NewFarm builds the farm collectors and registers them on reg.
func NewFarm(reg prometheus.Registerer) *FarmMetrics {
	perPool := []string{"pool"}
	m := &FarmMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yieldfarm",
			Subsystem: "events",
			Name:      "total",
			Help:      "Count of emitted farm and vault events segmented by type.",
		}, []string{"type"}),
		deposited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yieldfarm",
			Subsystem: "farm",
			Name:      "deposited_total",
			Help:      "Stake credited to pools after measured transfers.",
		}, perPool),
		withdrawn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yieldfarm",
			Subsystem: "farm",
			Name:      "withdrawn_total",
			Help:      "Stake withdrawn from pools, fees included.",
		}, perPool),
		fees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yieldfarm",
			Subsystem: "farm",
			Name:      "withdraw_fees_total",
			Help:      "Withdrawal fees carved out of payouts.",
		}, perPool),
		rewardsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yieldfarm",
			Subsystem: "farm",
			Name:      "rewards_paid_total",
			Help:      "Reward tokens transferred to users on harvest.",
		}, perPool),
		shortfall: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yieldfarm",
			Subsystem: "farm",
			Name:      "reward_shortfall_total",
			Help:      "Pending rewards not paid because the farm balance ran short.",
		}, perPool),
		forfeited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yieldfarm",
			Subsystem: "farm",
			Name:      "rewards_forfeited_total",
			Help:      "Pending rewards dropped by emergency withdrawals.",
		}, perPool),
		poolWeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "yieldfarm",
			Subsystem: "farm",
			Name:      "pool_weight",
			Help:      "Allocation weight per pool.",
		}, perPool),
		miningStart: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yieldfarm",
			Subsystem: "farm",
			Name:      "mining_start_timestamp",
			Help:      "Unix time emission started; zero before mining starts.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yieldfarm",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests served by farmd.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yieldfarm",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for farmd handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yieldfarm",
			Subsystem: "scheduler",
			Name:      "checkpoints_total",
			Help:      "Scheduled pool checkpoints by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.events,
		m.deposited,
		m.withdrawn,
		m.fees,
		m.rewardsPaid,
		m.shortfall,
		m.forfeited,
		m.poolWeight,
		m.miningStart,
		m.requests,
		m.latency,
		m.checkpoints,
	)
	return m
}

// Emit implements events.Emitter.
func (m *FarmMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(evt.EventType()).Inc()
	switch e := evt.(type) {
	case events.FarmMiningStarted:
		m.miningStart.Set(float64(e.StartTime))
	case events.FarmPoolAdded:
		m.poolWeight.WithLabelValues(poolLabel(e.PoolID)).Set(float64(e.Weight))
	case events.FarmPoolUpdated:
		m.poolWeight.WithLabelValues(poolLabel(e.PoolID)).Set(float64(e.Weight))
	case events.FarmDeposited:
		m.deposited.WithLabelValues(poolLabel(e.PoolID)).Add(toFloat(e.Credited))
	case events.FarmWithdrawn:
		pool := poolLabel(e.PoolID)
		m.withdrawn.WithLabelValues(pool).Add(toFloat(e.Amount))
		m.fees.WithLabelValues(pool).Add(toFloat(e.Fee))
	case events.FarmEmergencyWithdrawn:
		pool := poolLabel(e.PoolID)
		m.withdrawn.WithLabelValues(pool).Add(toFloat(e.Amount))
		m.fees.WithLabelValues(pool).Add(toFloat(new(big.Int).Sub(e.Amount, e.Net)))
		m.forfeited.WithLabelValues(pool).Add(toFloat(e.Forfeited))
	case events.FarmHarvested:
		pool := poolLabel(e.PoolID)
		m.rewardsPaid.WithLabelValues(pool).Add(toFloat(e.Paid))
		if e.Pending != nil && e.Paid != nil && e.Pending.Cmp(e.Paid) > 0 {
			m.shortfall.WithLabelValues(pool).Add(toFloat(new(big.Int).Sub(e.Pending, e.Paid)))
		}
	}
}

// ObserveRequest records the outcome of an HTTP request.
func (m *FarmMetrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// RecordCheckpoint counts a scheduled MassUpdatePools run.
func (m *FarmMetrics) RecordCheckpoint(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.checkpoints.WithLabelValues(outcome).Inc()
}

func poolLabel(pid uint64) string {
	return strconv.FormatUint(pid, 10)
}

func toFloat(v *big.Int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
