package gateway

import "net/http"

type outcomeKind int

const (
	outcomeContinue outcomeKind = iota
	outcomeHalt
	outcomeError
)

// Outcome is the structured result of a policy execution. Expected halts
// (authentication failure, rate-limit rejection, proxied response) are
// values, not errors; Fail is reserved for genuinely unexpected failures.
type Outcome struct {
	kind outcomeKind

	// Status is the HTTP status for a halting outcome.
	Status int

	// Header carries response headers for a halting outcome.
	Header http.Header

	// Body is the response body for a halting outcome.
	Body []byte

	// Err is the failure for an error outcome.
	Err error
}

// Continue lets the pipeline proceed to the next action or step.
func Continue() Outcome {
	return Outcome{kind: outcomeContinue}
}

// Halt stops the pipeline with a final response.
func Halt(status int, body []byte) Outcome {
	return Outcome{kind: outcomeHalt, Status: status, Body: body}
}

// HaltWithHeader stops the pipeline with a final response carrying headers.
func HaltWithHeader(status int, header http.Header, body []byte) Outcome {
	return Outcome{kind: outcomeHalt, Status: status, Header: header, Body: body}
}

// Fail aborts the pipeline with an unexpected error; the engine converts it
// into a 500-class response.
func Fail(err error) Outcome {
	return Outcome{kind: outcomeError, Err: err}
}

// Halted reports whether the outcome ends the pipeline with a response.
func (o Outcome) Halted() bool {
	return o.kind == outcomeHalt
}

// Failed reports whether the outcome aborts the pipeline with an error.
func (o Outcome) Failed() bool {
	return o.kind == outcomeError
}

// String names the outcome kind, for logs and metrics labels.
func (o Outcome) String() string {
	switch o.kind {
	case outcomeHalt:
		return "halt"
	case outcomeError:
		return "error"
	default:
		return "continue"
	}
}
