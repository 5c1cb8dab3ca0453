package metrics

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// BookingStats は予約処理の成功・失敗件数と平均処理時間をプロセス内で集計する
// カウンタは全てアトミックに更新される
type BookingStats struct {
	successful    atomic.Int64
	failed        atomic.Int64
	ticketsBooked atomic.Int64
	calls         atomic.Int64
	totalNanos    atomic.Int64
	prom          *Metrics
}

// BookingSnapshot はある時点の集計値
type BookingSnapshot struct {
	Successful              int64   `json:"successful_bookings"`
	Failed                  int64   `json:"failed_bookings"`
	TicketsBooked           int64   `json:"tickets_booked"`
	AverageProcessingTimeMs float64 `json:"average_processing_time_ms"`
}

// NewBookingStats は集計器を作成する。m が nil の場合は Prometheus へ出力しない
func NewBookingStats(m *Metrics) *BookingStats {
	return &BookingStats{prom: m}
}

// RecordSuccess は成功した予約を記録する
func (s *BookingStats) RecordSuccess(tickets int, d time.Duration) {
	s.successful.Inc()
	s.ticketsBooked.Add(int64(tickets))
	s.observe(d)
	if s.prom != nil {
		s.prom.BookingsTotal.WithLabelValues("success").Inc()
		s.prom.BookingDuration.WithLabelValues("success").Observe(d.Seconds())
	}
}

// RecordFailure は失敗した予約を理由付きで記録する
func (s *BookingStats) RecordFailure(reason string, d time.Duration) {
	s.failed.Inc()
	s.observe(d)
	if s.prom != nil {
		s.prom.BookingsTotal.WithLabelValues(reason).Inc()
		s.prom.BookingDuration.WithLabelValues(reason).Observe(d.Seconds())
	}
}

func (s *BookingStats) observe(d time.Duration) {
	s.calls.Inc()
	s.totalNanos.Add(d.Nanoseconds())
}

func (s *BookingStats) SuccessfulBookings() int64 { return s.successful.Load() }

func (s *BookingStats) FailedBookings() int64 { return s.failed.Load() }

func (s *BookingStats) TicketsBooked() int64 { return s.ticketsBooked.Load() }

// AverageProcessingTimeMs は1回あたりの平均処理時間（ミリ秒）を返す
func (s *BookingStats) AverageProcessingTimeMs() float64 {
	return averageMs(s.calls.Load(), s.totalNanos.Load())
}

func (s *BookingStats) Snapshot() BookingSnapshot {
	return BookingSnapshot{
		Successful:              s.SuccessfulBookings(),
		Failed:                  s.FailedBookings(),
		TicketsBooked:           s.TicketsBooked(),
		AverageProcessingTimeMs: s.AverageProcessingTimeMs(),
	}
}

// SeatStats は座席割り当ての件数をエリア別に集計する
type SeatStats struct {
	successful atomic.Int64
	failed     atomic.Int64
	calls      atomic.Int64
	totalNanos atomic.Int64

	mu    sync.RWMutex
	areas map[string]*areaCounter
	prom  *Metrics
}

type areaCounter struct {
	successful atomic.Int64
	failed     atomic.Int64
}

// AreaSnapshot はエリア別の集計値
type AreaSnapshot struct {
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
}

// SeatSnapshot はある時点の座席割り当て集計値
type SeatSnapshot struct {
	Successful              int64                   `json:"successful_assignments"`
	Failed                  int64                   `json:"failed_assignments"`
	Areas                   map[string]AreaSnapshot `json:"area_assignments"`
	AverageProcessingTimeMs float64                 `json:"average_processing_time_ms"`
}

func NewSeatStats(m *Metrics) *SeatStats {
	return &SeatStats{areas: make(map[string]*areaCounter), prom: m}
}

// Record は座席割り当て1回の結果を記録する。result は Prometheus のラベルに使う
func (s *SeatStats) Record(area string, assigned bool, result string, d time.Duration) {
	area = strings.ToUpper(area)
	c := s.area(area)
	if assigned {
		s.successful.Inc()
		c.successful.Inc()
	} else {
		s.failed.Inc()
		c.failed.Inc()
	}
	s.calls.Inc()
	s.totalNanos.Add(d.Nanoseconds())
	if s.prom != nil {
		s.prom.SeatAssignmentsTotal.WithLabelValues(area, result).Inc()
		s.prom.SeatAssignmentDuration.Observe(d.Seconds())
	}
}

func (s *SeatStats) area(name string) *areaCounter {
	s.mu.RLock()
	c, ok := s.areas[name]
	s.mu.RUnlock()
	if ok {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.areas[name]; !ok {
		c = &areaCounter{}
		s.areas[name] = c
	}
	return c
}

func (s *SeatStats) Successful() int64 { return s.successful.Load() }

func (s *SeatStats) Failed() int64 { return s.failed.Load() }

func (s *SeatStats) AverageProcessingTimeMs() float64 {
	return averageMs(s.calls.Load(), s.totalNanos.Load())
}

// ByArea はエリア別の集計値を返す
func (s *SeatStats) ByArea() map[string]AreaSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]AreaSnapshot, len(s.areas))
	for name, c := range s.areas {
		out[name] = AreaSnapshot{Successful: c.successful.Load(), Failed: c.failed.Load()}
	}
	return out
}

func (s *SeatStats) Snapshot() SeatSnapshot {
	return SeatSnapshot{
		Successful:              s.Successful(),
		Failed:                  s.Failed(),
		Areas:                   s.ByArea(),
		AverageProcessingTimeMs: s.AverageProcessingTimeMs(),
	}
}

func averageMs(calls, nanos int64) float64 {
	if calls == 0 {
		return 0
	}
	return float64(nanos) / float64(calls) / float64(time.Millisecond)
}
