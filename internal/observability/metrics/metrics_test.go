package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestBookingMetricsObserve(t *testing.T) {
	m := NewBookingMetrics(prometheus.NewRegistry())
	m.ObserveBooking("turnos_web")
	m.ObserveSlotTaken()
	m.ObserveRejection(true)
	m.ObserveAttendance("Atendido")
	m.ObserveConfirmLatency("otorgado", 0.12)
}

func TestBookingMetricsNilReceiver(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("turnos_web")
	m.ObserveSlotTaken()
	m.ObserveRejection(false)
	m.ObserveAttendance("No asistió")
	m.ObserveConfirmLatency("ocupado", 0.01)
}

func TestBookingMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveBooking("oralidad_civil")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one metric family")
	}
}
