package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the KYC flow. A nil *Metrics is a valid
// no-op recorder.
type Metrics struct {
	// Vendor poll attempts by task kind, attempt number and outcome
	VendorPolls *prometheus.CounterVec

	// Vendor HTTP call latency by task kind and call (submit, poll)
	VendorLatency *prometheus.HistogramVec

	// KYC step outcomes by step and status
	StepOutcome *prometheus.CounterVec

	// Local face extraction outcomes
	FaceExtraction *prometheus.CounterVec

	// Speech synthesis outcomes
	SpeechOutcome *prometheus.CounterVec
}

// New registers all KYC metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VendorPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_vendor_polls_total",
			Help: "Verification provider poll attempts by task, attempt and outcome",
		}, []string{"task", "attempt", "outcome"}), // outcome: "ok", "failed", "error"

		VendorLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyc_vendor_request_duration_seconds",
			Help:    "Duration of verification provider HTTP calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"task", "call"}),

		StepOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_step_outcomes_total",
			Help: "KYC step outcomes by step and resulting status",
		}, []string{"step", "status"}),

		FaceExtraction: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_face_extractions_total",
			Help: "Local Aadhaar face extraction outcomes",
		}, []string{"outcome"}),

		SpeechOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_tts_requests_total",
			Help: "Text-to-speech requests by outcome",
		}, []string{"outcome"}),
	}
}

// ObservePoll records a single poll attempt.
func (m *Metrics) ObservePoll(task, attempt, outcome string) {
	if m != nil {
		m.VendorPolls.WithLabelValues(task, attempt, outcome).Inc()
	}
}

// ObserveVendorLatency records the duration of a vendor HTTP call.
func (m *Metrics) ObserveVendorLatency(task, call string, d time.Duration) {
	if m != nil {
		m.VendorLatency.WithLabelValues(task, call).Observe(d.Seconds())
	}
}

// IncrementStep records the status a KYC step finished with.
func (m *Metrics) IncrementStep(step, status string) {
	if m != nil {
		m.StepOutcome.WithLabelValues(step, status).Inc()
	}
}

// IncrementFaceExtraction records a face extraction outcome.
func (m *Metrics) IncrementFaceExtraction(outcome string) {
	if m != nil {
		m.FaceExtraction.WithLabelValues(outcome).Inc()
	}
}

// IncrementSpeech records a text-to-speech outcome.
func (m *Metrics) IncrementSpeech(outcome string) {
	if m != nil {
		m.SpeechOutcome.WithLabelValues(outcome).Inc()
	}
}
