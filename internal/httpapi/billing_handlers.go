package httpapi

import (
	"io"
	"net/http"

	"mcpgate/internal/apperr"
	"mcpgate/internal/billing"
	"mcpgate/internal/domain"
)

func (s *Server) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("id")
	if _, _, appErr := s.requireOrgActor(r, orgID); appErr != nil {
		s.writeError(w, appErr)
		return
	}
	ent, err := s.billing.Effective(r.Context(), orgID)
	if err != nil {
		s.writeError(w, apperr.Internal(err))
		return
	}
	s.writeJSON(w, http.StatusOK, ent)
}

type changeSubscriptionRequest struct {
	PlanCode   string `json:"plan_code"`
	SeatCount  int    `json:"seat_count"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

func (s *Server) handleChangeSubscription(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("id")
	p, actor, appErr := s.requireOrgActor(r, orgID)
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if !s.allow(actor, "manage", domain.Resource{Type: domain.ResourceOrganization, OrgID: orgID}) {
		s.writeError(w, apperr.Forbidden("only an organization admin may change the subscription"))
		return
	}

	var req changeSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.billing.ChangeSubscription(r.Context(), orgID, billing.ChangeRequest{
		PlanCode: req.PlanCode, SeatCount: req.SeatCount,
		AdminEmail: p.Email, SuccessURL: req.SuccessURL, CancelURL: req.CancelURL,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("id")
	_, actor, appErr := s.requireOrgActor(r, orgID)
	if appErr != nil {
		s.writeError(w, appErr)
		return
	}
	if !s.allow(actor, "manage", domain.Resource{Type: domain.ResourceOrganization, OrgID: orgID}) {
		s.writeError(w, apperr.Forbidden("only an organization admin may cancel the subscription"))
		return
	}
	if err := s.billing.CancelSubscription(r.Context(), orgID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStripeWebhook is unauthenticated by bearer token, as Stripe
// can't supply one; HandleWebhook authenticates the payload itself
// via the Stripe-Signature HMAC.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, apperr.Validation("could not read webhook body"))
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if err := s.billing.HandleWebhook(r.Context(), body, sig, s.logger); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
