package api

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// registrationMetrics collects per-request timings for the register and
// unregister paths, where contention makes latency worth watching.
type registrationMetrics struct {
	logger        *log.Logger
	route         string
	start         time.Time
	authDuration  time.Duration
	storeDuration time.Duration
	outcome       string
}

func newRegistrationMetrics(logger *log.Logger, route string) *registrationMetrics {
	return &registrationMetrics{
		logger: logger,
		route:  route,
		start:  time.Now(),
	}
}

func (m *registrationMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *registrationMetrics) ObserveStore(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.storeDuration = duration
}

func (m *registrationMetrics) SetOutcome(outcome string) {
	if outcome == "" {
		return
	}
	m.outcome = outcome
}

func (m *registrationMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":    m.route,
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.storeDuration > 0 {
		fields["store_ms"] = durationToMillis(m.storeDuration)
	}
	if m.outcome != "" {
		fields["outcome"] = m.outcome
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("registration.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
