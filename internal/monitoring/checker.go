package monitoring

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/config"
)

const checkTimeout = 30 * time.Second

// Checker runs scheduled ledger and pipeline health checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	cron      *cron.Cron
}

// NewChecker creates a background checker. The schedule is a cron spec
// or descriptor such as "@every 5m".
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run schedules the checks and blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) error {
	schedule := c.cfg.Schedule
	if schedule == "" {
		schedule = "@every 5m"
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	c.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{log.Sugar()})))
	if _, err := c.cron.AddFunc(schedule, func() {
		rctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		c.Check(rctx)
	}); err != nil {
		return eris.Wrapf(err, "monitoring: parse schedule %q", schedule)
	}

	log.Info("starting ledger checker",
		zap.String("schedule", schedule),
		zap.Int64("low_balance_units", c.cfg.LowBalanceUnits),
	)
	c.cron.Start()

	<-ctx.Done()
	<-c.cron.Stop().Done()
	log.Info("ledger checker stopped")
	return nil
}

// Check collects one snapshot, evaluates it and sends any alerts.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackRuns)
	if err != nil {
		log.Error("monitoring: failed to collect snapshot", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered",
			zap.Int64("available_units", snap.AvailableUnits))
		return nil
	}
	for _, a := range alerts {
		log.Warn("monitoring: "+a.Message, zap.String("type", string(a.Type)))
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
