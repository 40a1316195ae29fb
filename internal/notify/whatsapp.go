package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/marketplace-orders/pkg/circuitbreaker"
	"github.com/vaidashi/marketplace-orders/pkg/errors"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
	"github.com/vaidashi/marketplace-orders/pkg/retry"
)

// Sender delivers a text message to a phone number
type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

// WhatsAppClient sends messages through a WhatsApp HTTP gateway
type WhatsAppClient struct {
	baseURL     string
	path        string
	username    string
	password    string
	httpClient  *http.Client
	logger      logger.Logger
	retryConfig *retry.RetryConfig
	breaker     *circuitbreaker.CircuitBreaker
}

// WhatsAppConfig holds the gateway coordinates
type WhatsAppConfig struct {
	BaseURL  string
	Path     string
	Username string
	Password string
}

type sendMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendMessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		MessageID string `json:"message_id"`
		Status    string `json:"status"`
	} `json:"data"`
}

// NewWhatsAppClient creates a gateway client with retries and a circuit breaker
func NewWhatsAppClient(cfg WhatsAppConfig, logger logger.Logger) *WhatsAppClient {
	return &WhatsAppClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		path:     "/" + strings.TrimLeft(cfg.Path, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
		retryConfig: &retry.RetryConfig{
			MaxAttempts:     3,
			BackoffStrategy: retry.NewDefaultExponentialBackoff(),
			Logger:          logger,
			RetryIf:         errors.IsRetryable,
		},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     time.Minute,
			HalfOpenMaxCalls: 1,
		}),
	}
}

// Breaker exposes the circuit state for health reporting
func (c *WhatsAppClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// Send delivers text to phone. Transient gateway failures are retried.
func (c *WhatsAppClient) Send(ctx context.Context, phone, text string) error {
	to := NormalizePhone(phone)
	if to == "" {
		return errors.NewInvalidInputError("recipient phone is empty")
	}

	err := c.breaker.Execute(func() error {
		return retry.Retry(ctx, func() error {
			return c.send(ctx, to, text)
		}, c.retryConfig)
	})

	if err != nil {
		c.logger.Error("Failed to send WhatsApp message", "error", err, "phone", to)
		return err
	}

	return nil
}

func (c *WhatsAppClient) send(ctx context.Context, to, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		Phone:   to + "@s.whatsapp.net",
		Message: text,
	})

	if err != nil {
		return errors.NewInternalError(fmt.Sprintf("failed to marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))

	if err != nil {
		return errors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)

	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return errors.NewTimeoutError("whatsapp gateway timed out")
		}
		return errors.NewTemporaryError(fmt.Sprintf("failed to reach whatsapp gateway: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)

	if err != nil {
		return errors.NewTemporaryError(fmt.Sprintf("failed to read response body: %v", err))
	}

	switch {
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return errors.NewTimeoutError("whatsapp gateway timed out")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.NewTemporaryError(fmt.Sprintf("whatsapp gateway error: %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return errors.NewAppError(errors.ErrInternal, fmt.Sprintf("whatsapp gateway rejected message: %d", resp.StatusCode), resp.StatusCode, false)
	}

	var parsed sendMessageResponse

	if err := json.Unmarshal(raw, &parsed); err != nil {
		return errors.NewInternalError(fmt.Sprintf("failed to parse response: %v", err))
	}

	if !parsed.Success {
		return errors.NewTemporaryError(fmt.Sprintf("whatsapp gateway refused message: %s", parsed.Message))
	}

	c.logger.Debug("WhatsApp message sent", "phone", to, "messageID", parsed.Data.MessageID)
	return nil
}

// LogSender logs messages instead of sending them
type LogSender struct {
	logger logger.Logger
}

// NewLogSender creates a dry-run Sender
func NewLogSender(logger logger.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message
func (s *LogSender) Send(ctx context.Context, phone, text string) error {
	s.logger.Info("Dry run: notification not sent", "phone", NormalizePhone(phone), "text", text)
	return nil
}
