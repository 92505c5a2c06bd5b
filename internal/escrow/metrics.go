package escrow

import "github.com/congo-pay/order_stake/internal/metrics"

var (
	metricLockWrites        = metrics.LazyLoadCounterVec("lock_writes_total", []string{"op"})
	metricLocks             = metrics.LazyLoadGauge("locks")
	metricAggregateDuration = metrics.LazyLoadHistogram("aggregate_duration_ms", metrics.BucketScanMs)
	metricAggregateFailures = metrics.LazyLoadCounter("aggregate_failures_total")
)
