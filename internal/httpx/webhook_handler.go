package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adisurya/go-storefront/internal/payment"
	"github.com/adisurya/go-storefront/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	signatureHeader = "X-Webhook-Signature"
	maxWebhookBody  = 1 << 20
)

// WebhookHandler receives payment outcome events from the processor. A 2xx
// acks the delivery; any 5xx asks the processor to redeliver later.
type WebhookHandler struct {
	Reconciler *payment.Reconciler
	Secret     string
	Redis      *redis.Client
	Log        *zap.Logger
}

type webhookReq struct {
	ExternalEventID string          `json:"external_event_id"`
	SessionRef      string          `json:"session_ref"`
	Outcome         payment.Outcome `json:"outcome"`
	AmountCents     int             `json:"amount_cents"`
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/webhooks/payment", h.handle)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if err := payment.VerifySignature(h.Secret, body, r.Header.Get(signatureHeader)); err != nil {
		recordWebhook("unknown", "bad_signature")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req webhookReq
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx := r.Context()

	// Fast-path duplicate drop. Redis is a shortcut only, the event store
	// remains the source of truth for idempotency.
	dedupKey := fmt.Sprintf(redisx.KeyWebhookDedup, req.ExternalEventID)
	if ok, _ := redisx.Exists(ctx, h.Redis, dedupKey); ok {
		recordWebhook(string(req.Outcome), "duplicate")
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	err = h.Reconciler.HandleEvent(ctx, payment.Event{
		ExternalEventID: req.ExternalEventID,
		SessionRef:      req.SessionRef,
		Outcome:         req.Outcome,
		AmountCents:     req.AmountCents,
		ReceivedAt:      time.Now().UTC(),
	})
	if errors.Is(err, payment.ErrInvalidEvent) {
		recordWebhook(string(req.Outcome), "malformed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		// Transient: a 5xx makes the processor redeliver, and the event
		// store dedup keeps the retry safe.
		recordWebhook(string(req.Outcome), "retry")
		h.Log.Error("webhook processing failed",
			zap.String("external_event_id", req.ExternalEventID),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "temporarily unable to process event")
		return
	}

	if err := h.Redis.Set(ctx, dedupKey, "1", redisx.TTLWebhookDedup).Err(); err != nil {
		h.Log.Warn("webhook dedup set failed",
			zap.String("external_event_id", req.ExternalEventID),
			zap.Error(err))
	}
	recordWebhook(string(req.Outcome), "ok")
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
