package orders

// Status is a fulfillment request state.
type Status string

const (
	StatusValidating Status = "VALIDATING"
	StatusSearching  Status = "SEARCHING"
	StatusCommitting Status = "COMMITTING"
	StatusFulfilled  Status = "FULFILLED"
	StatusRejected   Status = "REJECTED"
)

var validNext = map[Status]map[Status]bool{
	StatusValidating: {StatusSearching: true, StatusRejected: true},
	StatusSearching:  {StatusCommitting: true, StatusRejected: true},
	StatusCommitting: {StatusFulfilled: true, StatusSearching: true},
	StatusFulfilled:  {},
	StatusRejected:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
