package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OTP verification outcomes.
const (
	OTPResultMatch    = "match"
	OTPResultMismatch = "mismatch"
	OTPResultLocked   = "locked"
)

// MissionMetrics counts mission lifecycle transitions and OTP checks.
type MissionMetrics struct {
	transitions *prometheus.CounterVec
	otpChecks   *prometheus.CounterVec
}

// NewMissionMetrics registers the mission metrics on the provided registerer.
func NewMissionMetrics(reg prometheus.Registerer) *MissionMetrics {
	if reg == nil {
		return &MissionMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maiyom_mission_transitions_total",
		Help: "Committed mission status transitions.",
	}, []string{"from", "to"})
	otpChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maiyom_mission_otp_checks_total",
		Help: "Pickup and delivery OTP verification attempts by outcome.",
	}, []string{"phase", "result"})
	reg.MustRegister(transitions, otpChecks)
	return &MissionMetrics{transitions: transitions, otpChecks: otpChecks}
}

// ObserveTransition counts one committed status change.
func (m *MissionMetrics) ObserveTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// ObserveOTP counts one verification attempt for the phase.
func (m *MissionMetrics) ObserveOTP(phase, result string) {
	if m == nil || m.otpChecks == nil {
		return
	}
	m.otpChecks.WithLabelValues(normalizeLabel(phase), normalizeLabel(result)).Inc()
}
