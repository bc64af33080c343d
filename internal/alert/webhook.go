package alert

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"travelguard/antifraud/internal/domain"
	"travelguard/antifraud/internal/retry"
)

// Webhook request headers.
const (
	HeaderEvent     = "X-Antifraud-Event"
	HeaderSignature = "X-Antifraud-Signature"
)

// WebhookObserver POSTs alerts as JSON to a fixed URL.
type WebhookObserver struct {
	URL       string
	Secret    string // signs the body when set
	Attempts  int
	BaseDelay time.Duration

	client *http.Client
	logger *slog.Logger
}

// NewWebhookObserver creates an observer for url. A nil client gets a 5s timeout.
func NewWebhookObserver(url, secret string, client *http.Client, logger *slog.Logger) *WebhookObserver {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookObserver{
		URL:       url,
		Secret:    secret,
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		client:    client,
		logger:    logger,
	}
}

func (w *WebhookObserver) ID() string { return "webhook:" + w.URL }

// Deliver sends the alert, retrying transport errors, 429s and 5xx responses.
func (w *WebhookObserver) Deliver(ctx context.Context, a domain.Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	return retry.Do(ctx, w.Attempts, w.BaseDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderEvent, a.Type)
		if w.Secret != "" {
			req.Header.Set(HeaderSignature, Sign(w.Secret, body))
		}

		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		switch {
		case resp.StatusCode < 300:
			w.logger.Info("webhook delivered",
				"url", w.URL,
				"status", resp.StatusCode,
				"check_id", a.Event.CheckID,
				"risk_score", a.Result.TotalScore,
			)
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("webhook %s: status %d", w.URL, resp.StatusCode)
		default:
			return retry.Permanent(fmt.Errorf("webhook %s: status %d", w.URL, resp.StatusCode))
		}
	})
}

// Sign returns the signature header value for body: "sha256=" followed by
// the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
