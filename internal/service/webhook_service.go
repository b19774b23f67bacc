package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/internal/metrics"
	"settlement-gateway/pkg/retry"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Headers set on every merchant webhook.
const (
	HeaderWebhookEvent     = "X-Webhook-Event"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
	HeaderWebhookSignature = "X-Webhook-Signature"
)

// WebhookPayload is the JSON body posted to the merchant webhook_url.
type WebhookPayload struct {
	ID         string              `json:"id"`
	Event      domain.WebhookEvent `json:"event"`
	MerchantID string              `json:"merchant_id"`
	ResourceID string              `json:"resource_id"`
	Data       any                 `json:"data"`
	Timestamp  int64               `json:"timestamp"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookOptions controls delivery retries.
type WebhookOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// WebhookServiceImpl implements ports.WebhookService.
type WebhookServiceImpl struct {
	merchantRepo ports.MerchantRepository
	webhookRepo  ports.WebhookRepository
	encSvc       ports.EncryptionService
	sigSvc       ports.SignatureService
	httpClient   HTTPClient
	opts         WebhookOptions
	log          zerolog.Logger
	wg           sync.WaitGroup
}

// NewWebhookService creates a new webhook service.
func NewWebhookService(
	merchantRepo ports.MerchantRepository,
	webhookRepo ports.WebhookRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	opts WebhookOptions,
	log zerolog.Logger,
) *WebhookServiceImpl {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return &WebhookServiceImpl{
		merchantRepo: merchantRepo,
		webhookRepo:  webhookRepo,
		encSvc:       encSvc,
		sigSvc:       sigSvc,
		httpClient:   httpClient,
		opts:         opts,
		log:          log,
	}
}

// Enqueue signs the event and delivers it in the background.
// Merchants without a webhook_url are skipped.
func (s *WebhookServiceImpl) Enqueue(ctx context.Context, merchantID string, event domain.WebhookEvent, resourceID string, data any) error {
	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		s.log.Error().Err(err).Str("merchant_id", merchantID).Msg("webhook: failed to fetch merchant")
		return fmt.Errorf("fetch merchant: %w", err)
	}
	if merchant == nil || merchant.WebhookURL == nil || *merchant.WebhookURL == "" {
		s.log.Debug().Str("merchant_id", merchantID).Msg("webhook: no webhook URL configured, skipping")
		return nil
	}

	secretKey, err := s.encSvc.Decrypt(merchant.SecretKeyEnc)
	if err != nil {
		s.log.Error().Err(err).Str("merchant_id", merchantID).Msg("webhook: failed to decrypt merchant secret key")
		return fmt.Errorf("decrypt secret key: %w", err)
	}

	ts := time.Now().Unix()
	body, err := json.Marshal(WebhookPayload{
		ID:         uuid.NewString(),
		Event:      event,
		MerchantID: merchantID,
		ResourceID: resourceID,
		Data:       data,
		Timestamp:  ts,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	signature := s.sigSvc.Sign(secretKey, WebhookSigningString(ts, body))

	d := delivery{
		merchantID: merchantID,
		event:      event,
		resourceID: resourceID,
		url:        *merchant.WebhookURL,
		body:       body,
		timestamp:  ts,
		signature:  signature,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(context.WithoutCancel(ctx), d)
	}()

	return nil
}

// Wait blocks until every in-flight delivery has finished.
func (s *WebhookServiceImpl) Wait() {
	s.wg.Wait()
}

// WebhookSigningString is what the merchant recomputes to verify a webhook:
// "<timestamp>.<raw body>".
func WebhookSigningString(timestamp int64, body []byte) string {
	return strconv.FormatInt(timestamp, 10) + "." + string(body)
}

type delivery struct {
	merchantID string
	event      domain.WebhookEvent
	resourceID string
	url        string
	body       []byte
	timestamp  int64
	signature  string
}

func (s *WebhookServiceImpl) deliver(ctx context.Context, d delivery) {
	err := retry.Do(ctx, s.opts.MaxAttempts, s.opts.BaseDelay, func(attempt int) error {
		status, err := s.post(ctx, d)
		s.record(ctx, d, attempt, status, err)

		if err == nil {
			metrics.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
			s.log.Info().Str("resource_id", d.resourceID).Int("attempt", attempt).Int("status", status).Msg("webhook: delivered successfully")
			return nil
		}

		metrics.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
		s.log.Warn().Err(err).Str("resource_id", d.resourceID).Int("attempt", attempt).Msg("webhook: delivery failed")
		if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		s.log.Error().Err(err).Str("resource_id", d.resourceID).Str("event", string(d.event)).Msg("webhook: giving up")
	}
}

// post sends one attempt. It returns the HTTP status (0 when no response).
func (s *WebhookServiceImpl) post(ctx context.Context, d delivery) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(d.body))
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderWebhookEvent, string(d.event))
	req.Header.Set(HeaderWebhookTimestamp, strconv.FormatInt(d.timestamp, 10))
	req.Header.Set(HeaderWebhookSignature, "sha256="+d.signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (s *WebhookServiceImpl) record(ctx context.Context, d delivery, attempt, status int, deliveryErr error) {
	if s.webhookRepo == nil {
		return
	}

	entry := &domain.WebhookDeliveryLog{
		ID:         uuid.New(),
		MerchantID: d.merchantID,
		Event:      d.event,
		ResourceID: d.resourceID,
		WebhookURL: d.url,
		Payload:    string(d.body),
		Attempt:    attempt,
		Status:     domain.WebhookStatusDelivered,
		CreatedAt:  time.Now().UTC(),
	}
	if status != 0 {
		entry.HTTPStatus = &status
	}
	if deliveryErr != nil {
		entry.Status = domain.WebhookStatusFailed
		var pe *retry.PermanentError
		msg := deliveryErr.Error()
		if errors.As(deliveryErr, &pe) {
			msg = pe.Err.Error()
		}
		entry.LastError = &msg
	}

	if err := s.webhookRepo.Create(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("resource_id", d.resourceID).Msg("webhook: failed to record delivery attempt")
	}
}
