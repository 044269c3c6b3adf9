package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the booking lifecycle.
type BookingMetrics struct {
	bookingsTotal   *prometheus.CounterVec
	slotTakenTotal  prometheus.Counter
	rejectionsTotal *prometheus.CounterVec
	attendanceTotal *prometheus.CounterVec
	wizardLatency   *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turnos",
			Subsystem: "booking",
			Name:      "committed_total",
			Help:      "Total confirmed bookings",
		}, []string{"modo"}),
		slotTakenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "turnos",
			Subsystem: "booking",
			Name:      "slot_taken_total",
			Help:      "Confirmations lost to a concurrent booking of the same slot",
		}),
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turnos",
			Subsystem: "booking",
			Name:      "rejections_total",
			Help:      "Total rejected bookings",
		}, []string{"email_enviado"}),
		attendanceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turnos",
			Subsystem: "attendance",
			Name:      "transitions_total",
			Help:      "Attendance state transitions applied by staff",
		}, []string{"estado"}),
		wizardLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "turnos",
			Subsystem: "booking",
			Name:      "confirm_latency_seconds",
			Help:      "Latency of the wizard confirmation step",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resultado"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.slotTakenTotal, m.rejectionsTotal, m.attendanceTotal, m.wizardLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(modo string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(modo).Inc()
}

func (m *BookingMetrics) ObserveSlotTaken() {
	if m == nil {
		return
	}
	m.slotTakenTotal.Inc()
}

func (m *BookingMetrics) ObserveRejection(emailEnviado bool) {
	if m == nil {
		return
	}
	label := "false"
	if emailEnviado {
		label = "true"
	}
	m.rejectionsTotal.WithLabelValues(label).Inc()
}

func (m *BookingMetrics) ObserveAttendance(estado string) {
	if m == nil {
		return
	}
	m.attendanceTotal.WithLabelValues(estado).Inc()
}

func (m *BookingMetrics) ObserveConfirmLatency(resultado string, seconds float64) {
	if m == nil {
		return
	}
	m.wizardLatency.WithLabelValues(resultado).Observe(seconds)
}
