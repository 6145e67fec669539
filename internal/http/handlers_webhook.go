package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sssemil/dokustatus-sub002/internal/observability/logger"
	"github.com/sssemil/dokustatus-sub002/internal/store"
)

// SignatureHeader es el header de firma de los webhooks de billing.
const SignatureHeader = "Dokustatus-Signature"

const maxWebhookBody = 256 << 10 // 256KB

// subscriptionPayload es el data de los eventos subscription.*.
type subscriptionPayload struct {
	TenantID          string `json:"tenant_id"`
	Status            string `json:"status"`
	Plan              string `json:"plan"`
	PeriodEnd         int64  `json:"period_end,omitempty"` // unix seconds
	TrialEnd          int64  `json:"trial_end,omitempty"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end,omitempty"`
}

// handleBillingWebhook verifica la firma del evento ANTES de confiar en un
// byte del payload, y recién ahí actualiza el snapshot de suscripción.
func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		countWebhookEvent("rejected")
		WriteError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	defer r.Body.Close()

	ev, err := s.deps.Verifier.Verify(body, r.Header.Get(SignatureHeader))
	if err != nil {
		countWebhookEvent("rejected")
		logger.From(r.Context()).Warn("webhook rejected", logger.Err(err))
		WriteDomainError(w, err)
		return
	}

	log := logger.From(r.Context()).With(
		logger.String("event_id", ev.ID),
		logger.String("event_type", ev.Type),
	)

	switch ev.Type {
	case "subscription.created", "subscription.updated", "subscription.deleted":
		var p subscriptionPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			countWebhookEvent("rejected")
			WriteError(w, http.StatusBadRequest, "payload_malformed", "")
			return
		}
		tid, err := uuid.Parse(p.TenantID)
		if err != nil {
			countWebhookEvent("rejected")
			WriteError(w, http.StatusBadRequest, "payload_malformed", "tenant_id inválido")
			return
		}

		sub := store.Subscription{
			Status:            p.Status,
			Plan:              p.Plan,
			CancelAtPeriodEnd: p.CancelAtPeriodEnd,
		}
		if ev.Type == "subscription.deleted" {
			sub.Status = "canceled"
		}
		if p.PeriodEnd > 0 {
			sub.PeriodEnd = time.Unix(p.PeriodEnd, 0).UTC()
		}
		if p.TrialEnd > 0 {
			sub.TrialEnd = time.Unix(p.TrialEnd, 0).UTC()
		}

		if err := s.deps.Store.UpdateSubscription(r.Context(), tid, sub); err != nil {
			countWebhookEvent("rejected")
			log.Error("subscription update failed", logger.Err(err))
			WriteError(w, http.StatusInternalServerError, "internal_error", "")
			return
		}
		countWebhookEvent("ok")
		log.Info("subscription snapshot updated", logger.TenantID(p.TenantID))
		WriteJSON(w, http.StatusOK, map[string]string{"received": ev.ID})

	default:
		// evento que no nos interesa: ack igual para que el emisor no reintente
		countWebhookEvent("ok")
		log.Debug("webhook event ignored")
		WriteJSON(w, http.StatusOK, map[string]string{"received": ev.ID})
	}
}
