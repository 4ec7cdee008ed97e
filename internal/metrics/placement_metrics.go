package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PlacementMetrics содержит метрики оформления заказов.
type PlacementMetrics struct {
	// Счётчики исходов
	placed         prometheus.Counter
	rejected       *prometheus.CounterVec
	failed         *prometheus.CounterVec
	stockConflicts prometheus.Counter

	// Время оформления и размер заказа
	duration   prometheus.Histogram
	orderLines prometheus.Histogram
}

// NewPlacementMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewPlacementMetrics() *PlacementMetrics {
	return NewPlacementMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPlacementMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewPlacementMetricsWithRegisterer(registerer prometheus.Registerer) *PlacementMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PlacementMetrics{
		placed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders placed successfully",
		}),
		rejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_rejected_total",
			Help: "Total number of order requests rejected by validation",
		}, []string{"reason"}),
		failed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_failed_total",
			Help: "Total number of order requests failed for infrastructure reasons",
		}, []string{"reason"}),
		stockConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_conflicts_total",
			Help: "Total number of compare-and-set stock conflicts during placement",
		}),
		duration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_placement_duration_seconds",
			Help:    "Duration of successful order placement in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		orderLines: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_lines",
			Help:    "Number of lines per placed order",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),
	}
}

// RecordPlaced фиксирует успешно оформленный заказ.
func (m *PlacementMetrics) RecordPlaced(lines int, duration time.Duration) {
	m.placed.Inc()
	m.orderLines.Observe(float64(lines))
	m.duration.Observe(duration.Seconds())
}

// RecordRejected увеличивает счётчик отказов по причине.
func (m *PlacementMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// RecordFailed увеличивает счётчик инфраструктурных ошибок.
func (m *PlacementMetrics) RecordFailed(reason string) {
	m.failed.WithLabelValues(reason).Inc()
}

// RecordStockConflict увеличивает счётчик конфликтов остатков.
func (m *PlacementMetrics) RecordStockConflict() {
	m.stockConflicts.Inc()
}
