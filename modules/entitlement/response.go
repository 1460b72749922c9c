package entitlement

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/orbitnotes/entitlements/pkg/catalog"
	"github.com/orbitnotes/entitlements/pkg/ledger"
	"github.com/orbitnotes/entitlements/pkg/subscription"
)

// jsonResponse is the standard response envelope.
type jsonResponse struct {
	Data  any          `json:"data,omitempty"`
	Error *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func respond(w http.ResponseWriter, status int, body jsonResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondData(w http.ResponseWriter, status int, data any) {
	respond(w, status, jsonResponse{Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respond(w, status, jsonResponse{Error: &errorDetail{Code: code, Message: message}})
}

// subscriptionPayload is the wire shape of a subscription row. The receipt
// blob stays server-side.
type subscriptionPayload struct {
	ID               string     `json:"id"`
	AccountID        string     `json:"account_id"`
	PlanID           string     `json:"plan_id"`
	Status           string     `json:"status"`
	Provider         string     `json:"provider"`
	LineageID        string     `json:"lineage_id"`
	StartAt          time.Time  `json:"start_at"`
	EndAt            *time.Time `json:"end_at,omitempty"`
	ValidationStatus string     `json:"validation_status"`
	IsTrial          bool       `json:"is_trial"`
	IsIntroOffer     bool       `json:"is_intro_offer"`
	Note             string     `json:"note,omitempty"`
}

func toSubscriptionPayload(sub *subscription.Subscription) subscriptionPayload {
	return subscriptionPayload{
		ID:               sub.ID.String(),
		AccountID:        sub.AccountID.String(),
		PlanID:           sub.PlanID,
		Status:           string(sub.Status),
		Provider:         string(sub.Provider),
		LineageID:        sub.ProviderOriginalTransactionID,
		StartAt:          sub.StartAt,
		EndAt:            sub.EndAt,
		ValidationStatus: string(sub.ValidationStatus),
		IsTrial:          sub.IsTrial,
		IsIntroOffer:     sub.IsIntroOffer,
		Note:             sub.Note,
	}
}

type quotaPayload struct {
	Allowed   bool  `json:"allowed"`
	Current   int64 `json:"current"`
	Ceiling   int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

func toQuotaPayload(q ledger.Quota) quotaPayload {
	return quotaPayload{Allowed: q.Allowed, Current: q.Current, Ceiling: q.Ceiling, Remaining: q.Remaining}
}

type usagePayload struct {
	PlanID    string                  `json:"plan_id"`
	Resources map[string]quotaPayload `json:"resources"`
}

func toUsagePayload(u ledger.Usage) usagePayload {
	out := usagePayload{
		PlanID:    u.PlanID,
		Resources: make(map[string]quotaPayload, len(u.Resources)),
	}
	for kind, quota := range u.Resources {
		out.Resources[string(kind)] = toQuotaPayload(quota)
	}
	return out
}

type planPayload struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Interval string           `json:"interval"`
	Ceilings map[string]int64 `json:"ceilings"`
}

func toPlanPayload(p catalog.Plan) planPayload {
	out := planPayload{
		ID:       p.ID,
		Name:     p.Name,
		Interval: string(p.Interval),
		Ceilings: make(map[string]int64, len(p.Ceilings)),
	}
	for kind, ceiling := range p.Ceilings {
		out.Ceilings[string(kind)] = ceiling
	}
	return out
}
