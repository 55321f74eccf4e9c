package metrics

import (
	"math"
	"strings"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics exposes ledger gauges refreshed by the keeper.
type PoolMetrics struct {
	exchangeRate        *prometheus.GaugeVec
	firstMoneyOut       *prometheus.GaugeVec
	stakersBalance      *prometheus.GaugeVec
	premiumPerBlock     *prometheus.GaugeVec
	unallocatedYield    *prometheus.GaugeVec
	yieldPerBlock       prometheus.Gauge
	blockHeight         prometheus.Gauge
	invariantViolations *prometheus.CounterVec
	keeperRuns          *prometheus.CounterVec
}

var (
	poolOnce     sync.Once
	poolRegistry *PoolMetrics
)

var one = 1e18

// Pool returns the process-wide pool metrics, registering them on first use.
func Pool() *PoolMetrics {
	poolOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			exchangeRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "coverpool_exchange_rate",
				Help: "Underlying per claim unit by asset.",
			}, []string{"asset"}),
			firstMoneyOut: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "coverpool_first_money_out",
				Help: "First-money-out reserve in base units by asset.",
			}, []string{"asset"}),
			stakersBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "coverpool_stakers_balance",
				Help: "Underlying attributed to stakers in base units by asset.",
			}, []string{"asset"}),
			premiumPerBlock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "coverpool_premium_per_block",
				Help: "Aggregate protocol premium per block in base units by asset.",
			}, []string{"asset"}),
			unallocatedYield: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "coverpool_unallocated_yield",
				Help: "Yield units accrued to an asset but not yet harvested.",
			}, []string{"asset"}),
			yieldPerBlock: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "coverpool_yield_per_block",
				Help: "Yield units emitted per block.",
			}),
			blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "coverpool_block_height",
				Help: "Current logical block height of the ledger.",
			}),
			invariantViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "coverpool_invariant_violations_total",
				Help: "Ledger invariant checks that failed, by check.",
			}, []string{"check"}),
			keeperRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "coverpool_keeper_runs_total",
				Help: "Keeper job executions by job and outcome.",
			}, []string{"job", "outcome"}),
		}
		prometheus.MustRegister(
			poolRegistry.exchangeRate,
			poolRegistry.firstMoneyOut,
			poolRegistry.stakersBalance,
			poolRegistry.premiumPerBlock,
			poolRegistry.unallocatedYield,
			poolRegistry.yieldPerBlock,
			poolRegistry.blockHeight,
			poolRegistry.invariantViolations,
			poolRegistry.keeperRuns,
		)
	})
	return poolRegistry
}

// AssetSnapshot carries the per-asset values published as gauges.
type AssetSnapshot struct {
	Asset            string
	ExchangeRate     *uint256.Int
	FirstMoneyOut    *uint256.Int
	StakersBalance   *uint256.Int
	PremiumPerBlock  *uint256.Int
	UnallocatedYield *uint256.Int
}

func label(asset string) string {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return "UNKNOWN"
	}
	return asset
}

// Amount converts a base unit amount for export. Precision loss past 2^53 is
// acceptable for dashboards.
func Amount(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	return v.Float64()
}

// Ratio converts an 18-decimal fixed point value.
func Ratio(v *uint256.Int) float64 {
	f := Amount(v) / one
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

// ObserveAsset publishes one asset's gauges.
func (m *PoolMetrics) ObserveAsset(s AssetSnapshot) {
	if m == nil {
		return
	}
	asset := label(s.Asset)
	m.exchangeRate.WithLabelValues(asset).Set(Ratio(s.ExchangeRate))
	m.firstMoneyOut.WithLabelValues(asset).Set(Amount(s.FirstMoneyOut))
	m.stakersBalance.WithLabelValues(asset).Set(Amount(s.StakersBalance))
	m.premiumPerBlock.WithLabelValues(asset).Set(Amount(s.PremiumPerBlock))
	m.unallocatedYield.WithLabelValues(asset).Set(Amount(s.UnallocatedYield))
}

// ForgetAsset drops the gauges of a removed asset.
func (m *PoolMetrics) ForgetAsset(asset string) {
	if m == nil {
		return
	}
	asset = label(asset)
	m.exchangeRate.DeleteLabelValues(asset)
	m.firstMoneyOut.DeleteLabelValues(asset)
	m.stakersBalance.DeleteLabelValues(asset)
	m.premiumPerBlock.DeleteLabelValues(asset)
	m.unallocatedYield.DeleteLabelValues(asset)
}

func (m *PoolMetrics) SetYieldPerBlock(v *uint256.Int) {
	if m == nil {
		return
	}
	m.yieldPerBlock.Set(Amount(v))
}

func (m *PoolMetrics) SetBlockHeight(height uint64) {
	if m == nil {
		return
	}
	m.blockHeight.Set(float64(height))
}

func (m *PoolMetrics) RecordInvariantViolation(check string) {
	if m == nil {
		return
	}
	if check == "" {
		check = "unknown"
	}
	m.invariantViolations.WithLabelValues(check).Inc()
}

// RecordKeeperRun counts a keeper job execution.
func (m *PoolMetrics) RecordKeeperRun(job string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.keeperRuns.WithLabelValues(job, outcome).Inc()
}
