package sinkdelivery

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SinkProber re-probes degraded sinks; internal/engine implements it by
// re-publishing a synthetic heartbeat to each degraded sink.
type SinkProber interface {
	ProbeDegradedSinks()
}

// RecoveryScheduler runs a periodic probe of degraded system sinks so
// they can clear their degraded flag once the target recovers.
type RecoveryScheduler struct {
	cron   *cron.Cron
	prober SinkProber
	logger *zap.Logger
}

// NewRecoveryScheduler builds a scheduler that calls prober.ProbeDegradedSinks
// on the given cron spec (e.g. "@every 1m").
func NewRecoveryScheduler(spec string, prober SinkProber, logger *zap.Logger) (*RecoveryScheduler, error) {
	logger = logger.With(zap.String("component", "sink-recovery"))
	c := cron.New()
	rs := &RecoveryScheduler{cron: c, prober: prober, logger: logger}
	if _, err := c.AddFunc(spec, rs.tick); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RecoveryScheduler) tick() {
	rs.logger.Debug("probing degraded sinks")
	rs.prober.ProbeDegradedSinks()
}

// Start begins the schedule in the background.
func (rs *RecoveryScheduler) Start() { rs.cron.Start() }

// Stop halts the schedule, waiting for any in-flight tick to finish.
func (rs *RecoveryScheduler) Stop() { rs.cron.Stop() }
