package enums

import "fmt"

// AgreementStatus tracks the e-signature state of the rental agreement.
// Transitions move forward only: not_sent -> pending -> viewed -> signed,
// with pending/viewed able to fall to declined. Signed is terminal; declined
// may be re-sent (back to pending with a fresh submission).
type AgreementStatus string

const (
	AgreementStatusNotSent  AgreementStatus = "not_sent"
	AgreementStatusPending  AgreementStatus = "pending"
	AgreementStatusViewed   AgreementStatus = "viewed"
	AgreementStatusSigned   AgreementStatus = "signed"
	AgreementStatusDeclined AgreementStatus = "declined"
)

var validAgreementStatuses = []AgreementStatus{
	AgreementStatusNotSent,
	AgreementStatusPending,
	AgreementStatusViewed,
	AgreementStatusSigned,
	AgreementStatusDeclined,
}

// String implements fmt.Stringer.
func (a AgreementStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AgreementStatus.
func (a AgreementStatus) IsValid() bool {
	for _, candidate := range validAgreementStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// IsTerminalForSync reports whether the status no longer needs provider
// reconciliation. Declined still allows a re-send, but polling stops.
func (a AgreementStatus) IsTerminalForSync() bool {
	return a == AgreementStatusSigned || a == AgreementStatusDeclined
}

// ParseAgreementStatus converts raw input into an AgreementStatus.
func ParseAgreementStatus(value string) (AgreementStatus, error) {
	for _, candidate := range validAgreementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid agreement status %q", value)
}
