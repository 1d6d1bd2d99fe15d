package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrProcessor wraps any failure talking to the external payment processor.
var ErrProcessor = errors.New("payment processor request failed")

type SessionLineItem struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

type SessionRequest struct {
	OrderID    string            `json:"order_id"`
	LineItems  []SessionLineItem `json:"line_items"`
	TotalCents int               `json:"total_cents"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
}

type Session struct {
	Ref         string `json:"session_ref"`
	RedirectURL string `json:"redirect_url"`
}

// Processor is the wire boundary to the external payment provider. The
// session ref it returns is the key later webhook events resolve orders by.
type Processor interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	Refund(ctx context.Context, sessionRef string, amountCents int) error
}

// HTTPProcessor talks JSON over HTTP to the processor endpoint. Inventory
// locks are never held across these calls.
type HTTPProcessor struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPProcessor(endpoint string) *HTTPProcessor {
	return &HTTPProcessor{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPProcessor) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProcessor, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrProcessor, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrProcessor, err)
		}
	}
	return nil
}

func (p *HTTPProcessor) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	var s Session
	if err := p.post(ctx, "/sessions", req, &s); err != nil {
		return Session{}, err
	}
	if s.Ref == "" {
		return Session{}, fmt.Errorf("%w: empty session ref", ErrProcessor)
	}
	return s, nil
}

func (p *HTTPProcessor) Refund(ctx context.Context, sessionRef string, amountCents int) error {
	in := map[string]any{"session_ref": sessionRef, "amount_cents": amountCents}
	return p.post(ctx, "/refunds", in, nil)
}
