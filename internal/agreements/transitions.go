// Package agreements drives the e-signature lifecycle of the rental
// agreement attached to every order.
package agreements

import (
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	"github.com/bouncebros/bouncebros-backend/pkg/esign"
)

// Outcome classifies what applying a provider event to the current agreement
// state means.
type Outcome string

const (
	// OutcomeApplied means the event advances the agreement state.
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored means the event is a duplicate or arrived after a
	// state that supersedes it. Dropping it is safe.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeAnomaly means the event contradicts the recorded state, e.g.
	// a decline after a signature. The state is kept and the event logged.
	OutcomeAnomaly Outcome = "anomaly"
)

// Apply computes the agreement transition for one provider event. It is pure:
// callers persist the returned status only when the outcome is applied.
//
// Signed is terminal. Completed always wins over the intermediate states, so
// a completed event that arrives before its viewed event still lands on
// signed, and the late viewed event is then ignored rather than regressing
// the state.
func Apply(current enums.AgreementStatus, eventType string) (enums.AgreementStatus, Outcome) {
	switch eventType {
	case esign.EventSubmissionViewed:
		switch current {
		case enums.AgreementStatusPending:
			return enums.AgreementStatusViewed, OutcomeApplied
		case enums.AgreementStatusViewed, enums.AgreementStatusSigned, enums.AgreementStatusDeclined:
			return current, OutcomeIgnored
		default:
			return current, OutcomeAnomaly
		}

	case esign.EventSubmissionCompleted:
		if current == enums.AgreementStatusSigned {
			return current, OutcomeIgnored
		}
		return enums.AgreementStatusSigned, OutcomeApplied

	case esign.EventSubmissionDeclined:
		switch current {
		case enums.AgreementStatusPending, enums.AgreementStatusViewed:
			return enums.AgreementStatusDeclined, OutcomeApplied
		case enums.AgreementStatusDeclined:
			return current, OutcomeIgnored
		default:
			// A decline after a signature contradicts the ledger.
			return current, OutcomeAnomaly
		}

	default:
		return current, OutcomeIgnored
	}
}

// eventForStatus maps a polled provider status onto the webhook event type
// that carries the same meaning, so sync and webhooks share one transition
// table.
func eventForStatus(status string) (string, bool) {
	switch status {
	case esign.StatusViewed:
		return esign.EventSubmissionViewed, true
	case esign.StatusCompleted:
		return esign.EventSubmissionCompleted, true
	case esign.StatusDeclined:
		return esign.EventSubmissionDeclined, true
	default:
		return "", false
	}
}
