package vl

import (
	"image"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// RequestEvent describes a localization request that is about to be sent.
type RequestEvent struct {
	URL       string
	SecretKey string
	// Image is the query image as sent.
	Image image.Image
}

// ResponseEvent describes the outcome of a localization request.
type ResponseEvent struct {
	Status      ResponseStatus
	Timestamp   int64
	Message     string
	Body        string
	Passed      bool
	Position    r3.Vector
	Rotation    quat.Number
	Confidence  float64
	DatasetInfo string
}

// NewResponseEvent returns an event for a request that failed before reaching the service.
func NewResponseEvent(status ResponseStatus) ResponseEvent {
	return ResponseEvent{Status: status, Rotation: quat.Number{Real: 1}}
}

// ResponseEventFromBody parses body into an event. A body that is not JSON still yields an event
// carrying the status and message.
func (p *ResponseParser) ResponseEventFromBody(status ResponseStatus, message, body string) ResponseEvent {
	ev := NewResponseEvent(status)
	ev.Message = message
	ev.Body = body
	resp, err := p.Parse(body)
	if err != nil {
		p.logger.Debugw("response body could not be parsed", "error", err)
		return ev
	}
	ev.Timestamp = resp.Timestamp
	ev.Passed = resp.Passed
	ev.Position = resp.Position
	ev.Rotation = resp.Rotation
	ev.Confidence = resp.Confidence
	ev.DatasetInfo = resp.DatasetInfo
	return ev
}
