package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"notifyhub/config"
	"notifyhub/pkg/circuitbreaker"
)

// Message is one transactional email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	From    string `json:"from"`
}

// SendResult reports an email send outcome. Failures are data, never errors:
// the provider being down must not crash the delivery pipeline.
type SendResult struct {
	Sent  bool
	Error string
}

// Sender sends transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) SendResult
}

// ProviderSender posts messages to the configured HTTP email provider.
type ProviderSender struct {
	url    string
	apiKey string
	from   string
	client *http.Client
	logger *zap.Logger
}

func NewProviderSender(cfg config.EmailConfig, logger *zap.Logger) *ProviderSender {
	return &ProviderSender{
		url:    cfg.ProviderURL,
		apiKey: cfg.APIKey,
		from:   cfg.From,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger: logger,
	}
}

func (s *ProviderSender) Send(ctx context.Context, msg Message) SendResult {
	if msg.From == "" {
		msg.From = s.from
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return SendResult{Error: fmt.Sprintf("marshal message: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return SendResult{Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("Email provider call failed",
			zap.String("to", msg.To),
			zap.Error(err),
		)
		return SendResult{Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Warn("Email provider returned error",
			zap.String("to", msg.To),
			zap.Int("status", resp.StatusCode),
		)
		return SendResult{Error: fmt.Sprintf("provider returned status %d", resp.StatusCode)}
	}

	return SendResult{Sent: true}
}

// BreakerSender wraps a Sender with a circuit breaker. An open circuit is
// reported as a failed send, which routes the notification into the in-app
// fallback path.
type BreakerSender struct {
	inner   Sender
	breaker *circuitbreaker.CircuitBreaker
}

func NewBreakerSender(inner Sender, cfg circuitbreaker.Config) *BreakerSender {
	return &BreakerSender{
		inner:   inner,
		breaker: circuitbreaker.New(cfg),
	}
}

func (s *BreakerSender) Send(ctx context.Context, msg Message) SendResult {
	var result SendResult
	err := s.breaker.Execute(func() error {
		result = s.inner.Send(ctx, msg)
		if !result.Sent {
			return fmt.Errorf("send failed: %s", result.Error)
		}
		return nil
	})
	if err != nil && result.Error == "" {
		result = SendResult{Error: err.Error()}
	}
	return result
}
