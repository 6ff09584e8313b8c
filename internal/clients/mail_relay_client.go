package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
	"github.com/vaidashi/fulfillment-tracker/pkg/errors"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
	"github.com/vaidashi/fulfillment-tracker/pkg/retry"
)

// MailRelayClient hands logged emails to the outbound mail relay
type MailRelayClient struct {
	baseURL     string
	httpClient  *http.Client
	logger      logger.Logger
	retryConfig *retry.RetryConfig
}

// MessageRequest is the body of a relay submission
type MessageRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Type    string `json:"type"`
	// Reference lets the relay deduplicate redelivered messages
	Reference string `json:"reference,omitempty"`
}

// MessageResponse is the relay's answer to a submission
type MessageResponse struct {
	MessageID string `json:"message_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// NewMailRelayClient creates a new MailRelayClient
func NewMailRelayClient(baseURL string, timeout time.Duration, logger logger.Logger) *MailRelayClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	retryConfig := &retry.RetryConfig{
		MaxAttempts: 3,
		BackoffStrategy: &retry.ExponentialBackoff{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      1.5,
			JitterFactor:    0.2,
		},
		Logger: logger,
		RetryableErrors: []error{
			errors.ErrTimeout,
			errors.ErrTemporaryFailure,
			errors.ErrServiceUnavailable,
			errors.ErrRateLimited,
		},
	}

	return &MailRelayClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
		retryConfig: retryConfig,
	}
}

// WithRetryConfig replaces the retry policy
func (c *MailRelayClient) WithRetryConfig(cfg *retry.RetryConfig) *MailRelayClient {
	c.retryConfig = cfg
	return c
}

// SendEmail submits a logged email to the relay
func (c *MailRelayClient) SendEmail(ctx context.Context, email *models.EmailLog) (*MessageResponse, error) {
	return c.Send(ctx, &MessageRequest{
		To:        email.Recipient,
		Subject:   email.Subject,
		Body:      email.Body,
		Type:      string(email.Type),
		Reference: email.ID,
	})
}

// Send posts a message to the relay, retrying timeouts and server errors
func (c *MailRelayClient) Send(ctx context.Context, request *MessageRequest) (*MessageResponse, error) {
	url := fmt.Sprintf("%s/api/v1/messages", c.baseURL)

	reqBody, err := json.Marshal(request)

	if err != nil {
		return nil, errors.NewInternalError(fmt.Sprintf("failed to marshal request: %v", err))
	}

	var response *MessageResponse

	retryFunc := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))

		if err != nil {
			return errors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)

		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return errors.NewTimeoutError("mail relay request timed out")
			}
			return errors.NewTemporaryError(fmt.Sprintf("failed to send request: %v", err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)

		if err != nil {
			return errors.NewTemporaryError(fmt.Sprintf("failed to read response body: %v", err))
		}

		if err := classifyStatus(resp.StatusCode); err != nil {
			return err
		}

		response = &MessageResponse{}

		if len(body) > 0 {
			if err := json.Unmarshal(body, response); err != nil {
				return errors.NewAppError(errors.ErrInternal, fmt.Sprintf("failed to parse response: %v", err), http.StatusBadGateway, false)
			}
		}

		if response.Error != "" {
			if response.Code == "TIMEOUT" {
				return errors.NewTimeoutError(response.Error)
			}
			return errors.NewTemporaryError(response.Error)
		}

		return nil
	}

	if err := retry.Retry(ctx, retryFunc, c.retryConfig); err != nil {
		c.logger.Error("Failed to send email after retries",
			"error", err,
			"to", request.To,
			"type", request.Type)
		return nil, err
	}

	return response, nil
}

// classifyStatus maps relay HTTP failures onto the error taxonomy
func classifyStatus(code int) error {
	switch {
	case code < 400:
		return nil
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return errors.NewTimeoutError("mail relay request timed out")
	case code == http.StatusTooManyRequests:
		return errors.NewRateLimitedError("mail relay is rate limiting")
	case code >= 500:
		return errors.NewTemporaryError(fmt.Sprintf("mail relay error: %d", code))
	default:
		return errors.NewAppError(
			errors.ErrInternal,
			fmt.Sprintf("mail relay rejected message: %d", code),
			http.StatusBadGateway,
			false,
		)
	}
}
