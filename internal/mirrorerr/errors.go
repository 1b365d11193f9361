// Package mirrorerr classifies the errors that cross component boundaries in
// the copy-trading pipeline. Every error returned by a pipeline component
// MUST be wrapped in a PipelineError so callers can decide, cheaply, whether
// it is fatal at startup, a reason to drop the current signature or trade,
// or a reconnect signal.
package mirrorerr

import "fmt"

// Kind categorizes a PipelineError for dispatch by callers.
type Kind int

const (
	// Config marks bad or missing configuration; fatal at startup.
	Config Kind = iota
	// Transport marks stream connect/read/write failure; triggers subscriber reconnect, never surfaced.
	Transport
	// Rpc marks a per-endpoint JSON-RPC failure; only returned once every endpoint has failed.
	Rpc
	// Parse marks a malformed RPC payload; drops the current signature.
	Parse
	// NotFound marks a transaction not yet indexed; drops after the retry budget is exhausted.
	NotFound
	// Aggregator marks a rejected quote/swap; drops the current trade.
	Aggregator
	// Trading marks a violation of risk rules; drops silently at debug/info level.
	Trading
	// Signer marks a signature failure; drops the trade.
	Signer
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "ConfigError"
	case Transport:
		return "TransportError"
	case Rpc:
		return "RpcError"
	case Parse:
		return "ParseError"
	case NotFound:
		return "NotFoundError"
	case Aggregator:
		return "AggregatorError"
	case Trading:
		return "TradingError"
	case Signer:
		return "SignerError"
	default:
		return "UnknownError"
	}
}

// PipelineError is the single error type returned across component
// boundaries. It carries the classification needed to route the failure
// (bubble to main, log and drop, or trigger a reconnect) without string
// matching on the message.
type PipelineError struct {
	kind    Kind
	message string
	cause   error
}

func (e *PipelineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *PipelineError) Unwrap() error {
	return e.cause
}

// Kind returns the error's classification.
func (e *PipelineError) Kind() Kind {
	return e.kind
}

// New builds a PipelineError of the given kind with no wrapped cause.
func New(kind Kind, message string) *PipelineError {
	return &PipelineError{kind: kind, message: message}
}

// Wrap builds a PipelineError of the given kind around an existing error.
func Wrap(kind Kind, message string, cause error) *PipelineError {
	return &PipelineError{kind: kind, message: message, cause: cause}
}

// Is reports whether err is a PipelineError of the given kind.
func Is(err error, kind Kind) bool {
	var pe *PipelineError
	if e, ok := err.(*PipelineError); ok {
		pe = e
	} else {
		return false
	}
	return pe.kind == kind
}
