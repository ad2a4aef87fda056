package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertLowBalance     AlertType = "low_balance"
	AlertLedgerMissing  AlertType = "ledger_missing"
	AlertLedgerClamped  AlertType = "ledger_clamped"
	AlertRunFailureRate AlertType = "run_failure_rate"
)

// Failure-rate alerts need at least this many finished runs.
const minFinishedForRateAlert = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if !snap.LedgerExists {
		alerts = append(alerts, Alert{
			Type:      AlertLedgerMissing,
			Severity:  "medium",
			Message:   "No broker ledger exists for the service account; the next insight request will open one",
			Timestamp: now,
		})
	} else {
		if a.cfg.LowBalanceUnits > 0 && snap.AvailableUnits < a.cfg.LowBalanceUnits {
			alerts = append(alerts, Alert{
				Type:     AlertLowBalance,
				Severity: "high",
				Message: fmt.Sprintf("Ledger available balance %d units is below threshold %d units",
					snap.AvailableUnits, a.cfg.LowBalanceUnits),
				Details: map[string]any{
					"owner":           snap.Owner,
					"available_units": snap.AvailableUnits,
					"threshold_units": a.cfg.LowBalanceUnits,
				},
				Timestamp: now,
			})
		}
		if snap.Clamped {
			alerts = append(alerts, Alert{
				Type:     AlertLedgerClamped,
				Severity: "medium",
				Message:  fmt.Sprintf("Ledger locked amount %s exceeds total %s", snap.LockedWei, snap.TotalWei),
				Details: map[string]any{
					"owner":  snap.Owner,
					"total":  snap.TotalWei,
					"locked": snap.LockedWei,
				},
				Timestamp: now,
			})
		}
	}

	finished := snap.RunsDone + snap.RunsFailed
	if a.cfg.FailureRateThreshold > 0 && finished >= minFinishedForRateAlert && snap.RunsFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf("Insight failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished)",
				snap.RunsFailRate*100, a.cfg.FailureRateThreshold*100, snap.RunsFailed, finished),
			Details: map[string]any{
				"failure_rate": snap.RunsFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
