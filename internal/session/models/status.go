package models

// Status is the lifecycle state of an IDV session.
type Status string

const (
	StatusNeedsPayment       Status = "NEEDS_PAYMENT"
	StatusInProgress         Status = "IN_PROGRESS"
	StatusVerificationFailed Status = "VERIFICATION_FAILED"
	StatusIssued             Status = "ISSUED"
	StatusRefunded           Status = "REFUNDED"
)

var transitions = map[Status][]Status{
	StatusNeedsPayment:       {StatusInProgress},
	StatusInProgress:         {StatusVerificationFailed, StatusIssued, StatusInProgress},
	StatusVerificationFailed: {StatusRefunded, StatusInProgress},
	StatusIssued:             nil,
	StatusRefunded:           nil,
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether next is reachable from s in one step.
// IN_PROGRESS -> IN_PROGRESS and VERIFICATION_FAILED -> IN_PROGRESS exist
// only for the admin provider switch.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }
