package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約の総数（result: success, unavailable, conflict, user_not_found, invalid, expired, state, error）
	BookingsTotal *prometheus.CounterVec

	// 予約処理の所要時間（result）
	BookingDuration *prometheus.HistogramVec

	// 座席割り当ての総数（area: カテゴリのエリアか unknown, result: assigned, taken, invalid, conflict, no_ticket, error）
	SeatAssignmentsTotal *prometheus.CounterVec

	// 座席割り当ての所要時間
	SeatAssignmentDuration prometheus.Histogram

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec

	// 状態別の予約数（status: in_progress, confirmed）
	ActiveBookings *prometheus.GaugeVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		BookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookings_total",
				Help: "Total number of booking attempts by result",
			},
			[]string{"result"},
		),
		BookingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "booking_duration_seconds",
				Help:    "Time spent in the booking transaction",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"result"},
		),
		SeatAssignmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_assignments_total",
				Help: "Total number of seat assignment attempts by area and result",
			},
			[]string{"area", "result"},
		),
		SeatAssignmentDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seat_assignment_duration_seconds",
				Help:    "Time spent in the seat assignment transaction",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
		ActiveBookings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "active_bookings",
				Help: "Current number of bookings by status",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BookingsTotal,
		m.BookingDuration,
		m.SeatAssignmentsTotal,
		m.SeatAssignmentDuration,
		m.DistributedLockDuration,
		m.ActiveBookings,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
