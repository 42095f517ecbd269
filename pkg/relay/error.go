// Package relay provides the request and response shapes shared by the relay
// endpoints, the upstream adapter and the relay client.
package relay

// ErrorResponse is the JSON error envelope returned by the relay endpoints.
// Details is dropped when empty; rejections of the request itself carry only
// the summary.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// FailureResponse is the envelope for relay failures. Details is always
// written, empty when the backend sent no body.
type FailureResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Reason classifies why a relay call failed.
type Reason string

const (
	// ReasonUpstreamRejected means the backend replied with a non-success status.
	ReasonUpstreamRejected Reason = "upstream_rejected"

	// ReasonTransportFailure covers network, timeout and connection faults.
	ReasonTransportFailure Reason = "transport_failure"

	// ReasonDecodeFailure means a body could not be parsed per its content type.
	ReasonDecodeFailure Reason = "decode_failure"

	// ReasonValidationRejected is a local precondition failure, the backend is
	// never contacted.
	ReasonValidationRejected Reason = "validation_rejected"
)
