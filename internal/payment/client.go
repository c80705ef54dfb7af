package payment

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

	"nobat/internal/config"
	"nobat/internal/models"

	"github.com/rs/zerolog"
)

// Sentinel errors for the gateway handshake. ErrTransport and
// ErrMalformedResponse mean the outcome is unknown and the caller must
// not treat the charge as declined.
var (
	ErrGatewayRejected   = errors.New("gateway rejected the request")
	ErrTransport         = errors.New("gateway unreachable")
	ErrMalformedResponse = errors.New("gateway response malformed")
)

// Client talks to the hosted payment gateway: open a transaction, send
// the visitor to the hosted page, then verify the charge on return.
type Client struct {
	pin          string
	createURL    string
	verifyURL    string
	redirectBase string
	httpClient   *http.Client
	log          zerolog.Logger
}

func NewClient(cfg config.PaymentConfig, logger *zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var log zerolog.Logger
	if logger != nil {
		log = logger.With().Str("component", "payment").Logger()
	}
	return &Client{
		pin:          cfg.Pin,
		createURL:    cfg.CreateURL,
		verifyURL:    cfg.VerifyURL,
		redirectBase: strings.TrimRight(cfg.RedirectBase, "/") + "/",
		httpClient:   &http.Client{Timeout: timeout},
		log:          log,
	}
}

// Create opens a gateway transaction and returns its token.
func (c *Client) Create(ctx context.Context, req models.PaymentCreateRequest) (string, error) {
	body := map[string]any{
		"pin":          c.pin,
		"amount":       req.Amount,
		"callback_url": req.CallbackURL,
		"mobile":       req.Phone,
		"invoice_id":   req.InvoiceID,
		"description":  req.Description,
	}

	var parsed struct {
		Status  int    `json:"status"`
		TransID string `json:"trans_id"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, c.createURL, body, &parsed); err != nil {
		return "", err
	}

	if parsed.Status != 1 || parsed.TransID == "" {
		c.log.Warn().Int("status", parsed.Status).Str("message", parsed.Message).Msg("gateway refused to open transaction")
		return "", fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, parsed.Status, parsed.Message)
	}

	c.log.Info().Str("invoice_id", req.InvoiceID).Msg("gateway transaction opened")
	return parsed.TransID, nil
}

// RedirectURL is the hosted payment page for an open transaction.
func (c *Client) RedirectURL(transID string) string {
	return c.redirectBase + transID
}

// Verify asks the gateway whether the transaction was captured. A
// definitive decline returns Captured false with a nil error; only
// transport and parse failures return an error, and then the charge
// state is unknown.
func (c *Client) Verify(ctx context.Context, amount int64, transID string) (models.PaymentVerifyResult, error) {
	body := map[string]any{
		"pin":      c.pin,
		"amount":   amount,
		"trans_id": transID,
	}

	var parsed struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, c.verifyURL, body, &parsed); err != nil {
		return models.PaymentVerifyResult{}, err
	}

	result := models.PaymentVerifyResult{
		Captured: parsed.Status == 1,
		Code:     parsed.Status,
		Message:  parsed.Message,
	}
	if !result.Captured {
		c.log.Warn().Int("status", parsed.Status).Str("trans_id", transID).Msg("gateway declined the charge")
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
