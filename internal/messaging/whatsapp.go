package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/conversation"
	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

var whatsappSendTracer = otel.Tracer("leadflow.internal.messaging.whatsapp_send")

const defaultGraphBaseURL = "https://graph.facebook.com/v21.0"

// WhatsAppSender posts text messages through the WhatsApp Cloud API.
// Each outbound reply carries its own phone number id and access token,
// so one sender serves every tenant.
type WhatsAppSender struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// WhatsAppOption adjusts the sender.
type WhatsAppOption func(*WhatsAppSender)

// WithGraphBaseURL overrides the Graph API endpoint, mainly for tests.
func WithGraphBaseURL(base string) WhatsAppOption {
	return func(s *WhatsAppSender) {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) WhatsAppOption {
	return func(s *WhatsAppSender) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// NewWhatsAppSender builds a sender for the WhatsApp Cloud API.
func NewWhatsAppSender(logger *logging.Logger, opts ...WhatsAppOption) *WhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	s := &WhatsAppSender{
		baseURL: defaultGraphBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ conversation.ReplyMessenger = (*WhatsAppSender)(nil)

// SendReply dispatches one text message, retrying transient failures.
// It returns the provider message id assigned by WhatsApp.
func (s *WhatsAppSender) SendReply(ctx context.Context, msg conversation.OutboundReply) (string, error) {
	if msg.PhoneNumberID == "" {
		return "", errors.New("messaging: phone number id required")
	}
	if msg.AccessToken == "" {
		return "", errors.New("messaging: access token required")
	}
	to := NormalizeWaID(msg.To)
	if to == "" {
		return "", errors.New("messaging: to required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return "", errors.New("messaging: body required")
	}

	ctx, span := whatsappSendTracer.Start(ctx, "messaging.whatsapp.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("leadflow.org_id", msg.OrgID.String()),
		attribute.String("leadflow.phone_number_id", msg.PhoneNumberID),
	)

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text": map[string]any{
			"preview_url": false,
			"body":        msg.Body,
		},
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("messaging: marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, msg.PhoneNumberID)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+msg.AccessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				providerID := parseProviderMessageID(body)
				s.logger.Info("whatsapp message sent",
					"org_id", msg.OrgID, "conversation_id", msg.ConversationID,
					"phone_number_id", msg.PhoneNumberID)
				return providerID, nil
			}

			lastErr = graphError(resp.StatusCode, body)
			// Auth and validation failures will not heal on retry.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}

		if attempt < 3 {
			sleep := time.Duration(200+rand.Intn(300)) * time.Millisecond
			time.Sleep(sleep)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		s.logger.Error("failed to send whatsapp message",
			"error", lastErr, "org_id", msg.OrgID, "conversation_id", msg.ConversationID)
	}
	return "", lastErr
}

func parseProviderMessageID(body []byte) string {
	var parsed struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if len(parsed.Messages) == 0 {
		return ""
	}
	return parsed.Messages[0].ID
}

func graphError(status int, body []byte) error {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		return fmt.Errorf("whatsapp send failed: status %d, code %d: %s", status, parsed.Error.Code, parsed.Error.Message)
	}
	return fmt.Errorf("whatsapp send failed: status %d", status)
}
