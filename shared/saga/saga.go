package saga

// Choreography: there is no coordinator. Each participant reacts to the channel it is bound
// to and publishes the next message; compensation is triggered by PAYMENT_FAILED fan-out.

// Status is the combined per-order saga state across all participants
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusReserved  Status = "RESERVED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusReserved},
	StatusReserved: {StatusConfirmed, StatusCancelled},
}

// CanTransition reports whether from -> to is one of the legal saga steps
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the saga has finished
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}
