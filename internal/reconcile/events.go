package reconcile

import "context"

// ResultType classifies how a batch run ended.
type ResultType string

const (
	ResultSuccess         ResultType = "Success"
	ResultPartialSuccess  ResultType = "PartialSuccess"
	ResultFailure         ResultType = "Failure"
	ResultAlreadyUpToDate ResultType = "AlreadyUpToDate"
)

// Result is the terminal outcome of a batch run.
type Result struct {
	Type    ResultType `json:"resultType"`
	Message string     `json:"message,omitempty"`
}

// Event is one message on a batch progress stream: either an intermediate
// Status line, the terminal Result, or a terminal Err. Exactly one terminal
// event closes every stream unless the consumer abandons it first.
type Event struct {
	Status string  `json:"status,omitempty"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
}

// emit delivers an event unless the context is gone. The bool reports
// whether the consumer is still listening.
func emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func terminal(resultType ResultType, message string) Event {
	return Event{Result: &Result{Type: resultType, Message: message}}
}

func classify(succeeded, total int64, message string) Event {
	switch {
	case succeeded == total:
		return terminal(ResultSuccess, message)
	case succeeded > 0:
		return terminal(ResultPartialSuccess, message)
	default:
		return terminal(ResultFailure, "")
	}
}
