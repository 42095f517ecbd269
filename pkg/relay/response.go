package relay

import (
	"fmt"
	"net/http"
)

// Kind tags the variant held by a Response.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindAck   Kind = "ack"
	KindError Kind = "error"
)

// Response is the normalized result of a relay call. Exactly one group of
// fields is meaningful, selected by Kind:
//
//	KindText:  Text
//	KindImage: MediaType, Bytes
//	KindAck:   Bytes (the acknowledgement JSON, verbatim)
//	KindError: Status, Detail, Reason
type Response struct {
	Kind Kind

	Text string

	MediaType string
	Bytes     []byte

	Status int
	Detail string
	Reason Reason
}

// Text builds a textual response.
func Text(value string) Response {
	return Response{Kind: KindText, Text: value}
}

// Image builds an image response. The bytes are not copied.
func Image(mediaType string, data []byte) Response {
	return Response{Kind: KindImage, MediaType: mediaType, Bytes: data}
}

// Ack builds an upload acknowledgement response.
func Ack(body []byte) Response {
	return Response{Kind: KindAck, Bytes: body}
}

// Rejected builds an error response for a non-success upstream status.
func Rejected(status int, detail string) Response {
	return Response{Kind: KindError, Status: status, Detail: detail, Reason: ReasonUpstreamRejected}
}

// Failed builds a 500 error response for a local fault of the given reason.
func Failed(reason Reason, err error) Response {
	return Response{
		Kind:   KindError,
		Status: http.StatusInternalServerError,
		Detail: fmt.Sprint(err),
		Reason: reason,
	}
}

// IsError reports whether the response carries an error.
func (r Response) IsError() bool {
	return r.Kind == KindError
}
