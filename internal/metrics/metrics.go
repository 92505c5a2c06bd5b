// Package metrics exposes Prometheus meters that packages declare as package-level vars
// and create on first use.
package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "order_stake"

// Standard histogram buckets.
var (
	BucketScanMs   = []float64{1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10_000}
	BucketHTTPReqs = []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000}
)

var registry sync.Map // name -> prometheus.Collector

// CountMeter is a monotonically increasing counter.
type CountMeter interface {
	Add(int64)
}

// CountVecMeter is a counter partitioned by labels.
type CountVecMeter interface {
	AddWithLabel(int64, map[string]string)
}

// GaugeMeter is a value that can go up and down.
type GaugeMeter interface {
	Set(int64)
}

// HistogramMeter records observed values into buckets.
type HistogramMeter interface {
	Observe(int64)
}

// HistogramVecMeter is a histogram partitioned by labels.
type HistogramVecMeter interface {
	ObserveWithLabels(int64, map[string]string)
}

type counter struct{ c prometheus.Counter }

func (m counter) Add(i int64) { m.c.Add(float64(i)) }

type counterVec struct{ c *prometheus.CounterVec }

func (m counterVec) AddWithLabel(i int64, labels map[string]string) {
	m.c.With(labels).Add(float64(i))
}

type gauge struct{ g prometheus.Gauge }

func (m gauge) Set(i int64) { m.g.Set(float64(i)) }

type histogram struct{ h prometheus.Histogram }

func (m histogram) Observe(i int64) { m.h.Observe(float64(i)) }

type histogramVec struct{ h *prometheus.HistogramVec }

func (m histogramVec) ObserveWithLabels(i int64, labels map[string]string) {
	m.h.With(labels).Observe(float64(i))
}

// register returns the collector already registered under name, or registers c.
func register[T prometheus.Collector](name string, c T) T {
	if existing, loaded := registry.LoadOrStore(name, c); loaded {
		return existing.(T)
	}
	if err := prometheus.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if prev, ok := already.ExistingCollector.(T); ok {
				return prev
			}
		}
		slog.Warn("unable to register metric", "name", name, "error", err)
	}
	return c
}

func Counter(name string) CountMeter {
	return counter{register(name, prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name}))}
}

func CounterVec(name string, labels []string) CountVecMeter {
	return counterVec{register(name, prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name}, labels))}
}

func Gauge(name string) GaugeMeter {
	return gauge{register(name, prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name}))}
}

func Histogram(name string, buckets []float64) HistogramMeter {
	return histogram{register(name, prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: name, Buckets: buckets}))}
}

func HistogramVec(name string, labels []string, buckets []float64) HistogramVecMeter {
	return histogramVec{register(name, prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Buckets: buckets}, labels))}
}

// LazyLoad defers creating a meter until first use, so meters can be declared as
// package-level vars.
func LazyLoad[T any](f func() T) func() T {
	var (
		result T
		once   sync.Once
	)
	return func() T {
		once.Do(func() { result = f() })
		return result
	}
}

func LazyLoadCounter(name string) func() CountMeter {
	return LazyLoad(func() CountMeter { return Counter(name) })
}

func LazyLoadCounterVec(name string, labels []string) func() CountVecMeter {
	return LazyLoad(func() CountVecMeter { return CounterVec(name, labels) })
}

func LazyLoadGauge(name string) func() GaugeMeter {
	return LazyLoad(func() GaugeMeter { return Gauge(name) })
}

func LazyLoadHistogram(name string, buckets []float64) func() HistogramMeter {
	return LazyLoad(func() HistogramMeter { return Histogram(name, buckets) })
}

func LazyLoadHistogramVec(name string, labels []string, buckets []float64) func() HistogramVecMeter {
	return LazyLoad(func() HistogramVecMeter { return HistogramVec(name, labels, buckets) })
}

// HTTPHandler serves the default Prometheus registry.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}
