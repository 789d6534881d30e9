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

	"github.com/sells-group/shelf-crawler/internal/config"
	"github.com/sells-group/shelf-crawler/internal/resilience"
)

// minPagesForRate keeps a handful of fetch failures on a tiny crawl from
// alerting.
const minPagesForRate = 20

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertDegradedRuns   AlertType = "degraded_runs"
	AlertFetchErrorRate AlertType = "fetch_error_rate"
	AlertEmptyRuns      AlertType = "empty_runs"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
		},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsComplete + snap.RunsDegraded
	if finished >= a.cfg.MinRuns && finished > 0 && snap.RunFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDegradedRuns,
			Severity: "high",
			Message: fmt.Sprintf(
				"Degraded run rate %.1f%% exceeds threshold %.1f%% (%d degraded / %d finished in last %dh)",
				snap.RunFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsDegraded, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RunFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"degraded":     snap.RunsDegraded,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	attempts := snap.PagesFetched + snap.FetchErrors
	if attempts >= minPagesForRate && snap.FetchErrorRate > a.cfg.FetchErrorThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFetchErrorRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Fetch error rate %.1f%% exceeds threshold %.1f%% (%d of %d pages in last %dh)",
				snap.FetchErrorRate*100, a.cfg.FetchErrorThreshold*100,
				snap.FetchErrors, attempts, snap.LookbackHours,
			),
			Details: map[string]any{
				"fetch_error_rate": snap.FetchErrorRate,
				"threshold":        a.cfg.FetchErrorThreshold,
				"fetch_errors":     snap.FetchErrors,
				"attempts":         attempts,
			},
			Timestamp: now,
		})
	}

	// A finished run with no records usually means a retailer changed its
	// markup and the rule set no longer matches.
	if len(snap.EmptyRuns) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertEmptyRuns,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d finished run(s) extracted no products in last %dh",
				len(snap.EmptyRuns), snap.LookbackHours,
			),
			Details: map[string]any{
				"run_ids": snap.EmptyRuns,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts posts each alert to the configured webhook, retrying
// transient failures, and returns how many were delivered.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	log := zap.L().With(zap.String("component", "monitoring.alerter"))
	sent := 0
	for _, alert := range alerts {
		retry := a.retry
		retry.OnRetry = resilience.RetryLogger("monitoring.alerter", string(alert.Type))
		err := resilience.Do(ctx, retry, func(ctx context.Context) error {
			return a.post(ctx, alert)
		})
		if err != nil {
			log.Error("alert not delivered",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		log.Info("alert delivered",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// post sends one alert. 429 and 5xx responses are transient.
func (a *Alerter) post(ctx context.Context, alert Alert) error {
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
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
