package models

import "strings"

// Status is the closed lifecycle enum shared by transactions and
// reimbursements. PENDING is the only non-terminal state; no status
// ever reverts once terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status is final and immutable.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// CanTransition checks the forward-only transition table.
func (s Status) CanTransition(to Status) bool {
	allowed := map[Status][]Status{
		StatusPending:   {StatusSucceeded, StatusFailed, StatusCancelled},
		StatusSucceeded: {},
		StatusFailed:    {},
		StatusCancelled: {},
	}
	for _, t := range allowed[s] {
		if t == to {
			return true
		}
	}
	return false
}

// FromGatewayStatus maps a gateway-reported or legacy stored status string
// into the closed enum. The gateway vocabulary is not contractually
// guaranteed, and older rows carry French labels, so the mapping is
// deliberately wide. Unrecognized values map to FAILED with ok=false so
// the caller can flag the value instead of crashing the pipeline.
func FromGatewayStatus(raw string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "SUCCESSFUL", "SUCCEEDED", "COMPLETED", "PAID", "OK",
		"VALIDE", "VALIDÉ", "VALIDEE", "VALIDÉE", "APPROUVEE", "APPROUVÉE":
		return StatusSucceeded, true
	case "FAILED", "FAILURE", "ERROR", "REJECTED", "DECLINED",
		"ECHEC", "ÉCHEC", "ECHOUE", "ECHOUÉ", "REFUSEE", "REFUSÉE":
		return StatusFailed, true
	case "PENDING", "PROCESSING", "INITIATED", "IN_PROGRESS",
		"EN_ATTENTE", "EN ATTENTE", "EN_COURS":
		return StatusPending, true
	case "CANCELLED", "CANCELED", "ANNULEE", "ANNULÉE", "ANNULE", "ANNULÉ":
		return StatusCancelled, true
	}
	return StatusFailed, false
}
