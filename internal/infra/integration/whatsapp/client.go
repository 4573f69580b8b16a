package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xavierca1/leadflow/internal/infra/phone"
)

const (
	DefaultBaseURL  = "https://graph.facebook.com/v18.0"
	DefaultLanguage = "he"
)

var ErrNotConfigured = errors.New("whatsapp: access token or phone number id not configured")

// APIError carries the Graph API rejection so callers can log the code.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api error: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

func NewClient(cfg Config, timeout time.Duration, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = DefaultLanguage
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		log:        log,
	}
}

// SendTemplate sends an approved template message and returns the provider message id.
func (c *Client) SendTemplate(ctx context.Context, input SendMessageInput) (string, error) {
	if c.cfg.AccessToken == "" || c.cfg.PhoneNumberID == "" {
		c.log.Warn("whatsapp_not_configured")
		return "", ErrNotConfigured
	}

	to := phone.WithoutPlus(input.PhoneNumber)
	if to == "" {
		return "", eris.New("whatsapp: recipient phone is empty")
	}

	lang := input.Language
	if lang == "" {
		lang = c.cfg.DefaultLanguage
	}

	payload := sendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "template",
		Template: template{
			Name:     input.TemplateName,
			Language: templateLanguage{Code: lang},
		},
	}
	if len(input.Parameters) > 0 {
		payload.Template.Components = []templateComponent{{
			Type:       "body",
			Parameters: convertParametersToAPI(input.Parameters),
		}}
	}

	messageID, err := c.post(ctx, payload)
	if err != nil {
		return "", err
	}

	c.log.Info("whatsapp_message_sent",
		zap.String("template", input.TemplateName),
		zap.String("message_id", messageID),
	)
	return messageID, nil
}

// SendText sends a free-form text message. Meta only delivers these inside
// the 24h customer service window opened by an inbound message.
func (c *Client) SendText(ctx context.Context, phoneNumber, body string) (string, error) {
	if c.cfg.AccessToken == "" || c.cfg.PhoneNumberID == "" {
		c.log.Warn("whatsapp_not_configured")
		return "", ErrNotConfigured
	}

	to := phone.WithoutPlus(phoneNumber)
	if to == "" {
		return "", eris.New("whatsapp: recipient phone is empty")
	}

	payload := textMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	}

	messageID, err := c.post(ctx, payload)
	if err != nil {
		return "", err
	}
	c.log.Info("whatsapp_text_sent", zap.String("message_id", messageID))
	return messageID, nil
}

func (c *Client) post(ctx context.Context, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrap(err, "whatsapp: encode payload")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "whatsapp: rate limiter")
		}
	}

	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "whatsapp: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("whatsapp_http_error", zap.Error(err))
		return "", eris.Wrap(err, "whatsapp: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "whatsapp: read response")
	}

	var result SendMessageResponse
	decodeErr := json.Unmarshal(respBody, &result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		if decodeErr == nil && result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
		}
		c.log.Error("whatsapp_api_error",
			zap.Int("status_code", resp.StatusCode),
			zap.Int("code", apiErr.Code),
			zap.String("message", apiErr.Message),
		)
		return "", apiErr
	}
	if decodeErr != nil {
		return "", eris.Wrap(decodeErr, "whatsapp: decode response")
	}
	if result.Error != nil {
		return "", &APIError{StatusCode: resp.StatusCode, Code: result.Error.Code, Message: result.Error.Message}
	}

	if len(result.Messages) == 0 {
		return "", nil
	}
	return result.Messages[0].ID, nil
}

func convertParametersToAPI(params []string) []templateParameter {
	result := make([]templateParameter, 0, len(params))
	for _, param := range params {
		result = append(result, templateParameter{Type: "text", Text: param})
	}
	return result
}
