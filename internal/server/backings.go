package server

import (
	"io"
	"net/http"

	"crowdfund/internal/funding"
	"crowdfund/pkg/types"
)

const maxWebhookBody = 64 << 10

// backingRequest is the client's view of CreateBackingInput; project and
// backer come from the route and the session.
type backingRequest struct {
	RewardTierID      *string                `json:"rewardTierId,omitempty"`
	PledgeAmountCents int64                  `json:"pledgeAmount"`
	ExtraSupportCents int64                  `json:"extraSupport"`
	BackerName        string                 `json:"backerName"`
	BackerEmail       string                 `json:"backerEmail"`
	ShippingAddress   *types.ShippingAddress `json:"shippingAddress,omitempty"`
	IsAnonymous       bool                   `json:"isAnonymous"`
	IdempotencyKey    string                 `json:"idempotencyKey,omitempty"`
}

func (s *Service) handleCreateBacking(w http.ResponseWriter, r *http.Request) {
	var input backingRequest
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	if input.IdempotencyKey == "" {
		input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	if input.BackerEmail == "" {
		input.BackerEmail = emailFromContext(r.Context())
	}

	backing, err := s.funding.CreateBacking(r.Context(), funding.CreateBackingInput{
		ProjectID:         r.PathValue("id"),
		BackerID:          userIDFromContext(r.Context()),
		RewardTierID:      input.RewardTierID,
		PledgeAmountCents: input.PledgeAmountCents,
		ExtraSupportCents: input.ExtraSupportCents,
		BackerName:        input.BackerName,
		BackerEmail:       input.BackerEmail,
		ShippingAddress:   input.ShippingAddress,
		IsAnonymous:       input.IsAnonymous,
		IdempotencyKey:    input.IdempotencyKey,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, backing)
}

func (s *Service) handleListProjectBackings(w http.ResponseWriter, r *http.Request) {
	backings, err := s.funding.BackingsByProject(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, backings)
}

func (s *Service) handleGetBacking(w http.ResponseWriter, r *http.Request) {
	backing, err := s.funding.Backing(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, backing)
}

func (s *Service) handleMyBackings(w http.ResponseWriter, r *http.Request) {
	backings, err := s.funding.BackingsByBacker(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, backings)
}

func (s *Service) handleCancelBacking(w http.ResponseWriter, r *http.Request) {
	backing, err := s.funding.CancelBacking(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, backing)
}

func (s *Service) handleFulfillBacking(w http.ResponseWriter, r *http.Request) {
	backing, err := s.funding.FulfillBacking(r.Context(), r.PathValue("id"), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, backing)
}

func (s *Service) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		s.writeError(w, r, &types.Error{Code: types.CodeNotFound, Detail: "payments are not configured"})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.writeError(w, r, types.NewValidationError("body", "webhook payload is too large"))
		return
	}

	event, err := s.webhooks.HandleWebhook(r.Context(), s.funding, payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"event": event.ID, "kind": string(event.Kind)})
}
