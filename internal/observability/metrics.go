package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_coach_active_sessions",
		Help: "Number of live conversation sessions",
	})

	totalSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_coach_sessions_total",
		Help: "Sessions started, by final outcome",
	}, []string{"outcome"})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_coach_session_duration_seconds",
		Help:    "Duration of conversation sessions in seconds",
		Buckets: []float64{5, 30, 60, 120, 300, 600, 1200, 1800},
	})

	connectLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_coach_connect_latency_seconds",
		Help:    "Time from dial to setup acknowledgement",
		Buckets: prometheus.DefBuckets,
	})

	// Capture path
	packetsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_coach_packets_sent_total",
		Help: "Audio packets written to the session",
	})

	packetsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_coach_packets_dropped_total",
		Help: "Audio packets dropped before reaching the session",
	}, []string{"reason"})

	vadTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_coach_vad_transitions_total",
		Help: "Voice activity transitions",
	}, []string{"event"})

	// Playback path
	playbackSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_coach_playback_sources",
		Help: "Scheduled or playing agent audio buffers",
	})

	interruptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_coach_interruptions_total",
		Help: "Agent turns cut off by barge-in",
	})

	turnsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_coach_transcript_entries_total",
		Help: "Finalized transcript entries by role",
	}, []string{"role"})

	// Collaborators
	collaboratorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_coach_collaborator_requests_total",
		Help: "Grammar and challenge requests by status",
	}, []string{"collaborator", "status"})

	collaboratorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_coach_collaborator_latency_seconds",
		Help:    "Grammar and challenge request latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"collaborator"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_coach_errors_total",
		Help: "Total number of errors",
	}, []string{"error_type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_coach_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_coach_circuit_breaker_failures_total",
		Help: "Total number of circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_coach_audio_bytes_total",
		Help: "Total audio bytes by direction",
	}, []string{"direction"})
)

// Metrics tracks one conversation session.
type Metrics struct {
	sessionID string
	startTime time.Time
	started   bool
	mu        sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{sessionID: sessionID}
}

// SessionID returns the session this tracker belongs to.
func (m *Metrics) SessionID() string { return m.sessionID }

// RecordSessionStart records an acknowledged session open.
func (m *Metrics) RecordSessionStart(connectTook time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.startTime = time.Now()
	activeSessions.Inc()
	connectLatency.Observe(connectTook.Seconds())
}

// RecordSessionEnd records the end of a session. Only the first call after
// a start counts.
func (m *Metrics) RecordSessionEnd(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.started = false
	activeSessions.Dec()
	totalSessions.WithLabelValues(outcome).Inc()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordPacketSent records one audio packet written to the session.
func (m *Metrics) RecordPacketSent(bytes int) {
	packetsSent.Inc()
	audioBytes.WithLabelValues("outbound").Add(float64(bytes))
}

// RecordPacketDropped records a packet that never reached the session.
func (m *Metrics) RecordPacketDropped(reason string) {
	packetsDropped.WithLabelValues(reason).Inc()
}

// RecordVADTransition records a speech start or stop.
func (m *Metrics) RecordVADTransition(event string) {
	vadTransitions.WithLabelValues(event).Inc()
}

// RecordInboundAudio records decoded agent audio.
func (m *Metrics) RecordInboundAudio(bytes int) {
	audioBytes.WithLabelValues("inbound").Add(float64(bytes))
}

// RecordInterruption records a barge-in flush.
func (m *Metrics) RecordInterruption() {
	interruptions.Inc()
}

// RecordTranscriptEntry records a finalized transcript entry.
func (m *Metrics) RecordTranscriptEntry(role string) {
	turnsFinalized.WithLabelValues(role).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// SetPlaybackSources reports the size of the playback active set.
func SetPlaybackSources(n int) {
	playbackSources.Set(float64(n))
}

// RecordCollaborator records the outcome of a grammar or challenge request.
func RecordCollaborator(name string, success bool, took time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	collaboratorRequests.WithLabelValues(name, status).Inc()
	collaboratorLatency.WithLabelValues(name).Observe(took.Seconds())
}

// RecordCollaboratorSkipped records a request not made because the feature
// disabled itself.
func RecordCollaboratorSkipped(name string) {
	collaboratorRequests.WithLabelValues(name, "skipped").Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
