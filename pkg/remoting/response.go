package remoting

import (
	"github.com/DMA-Software/dma-goamf/pkg/amf"
)

// Response method suffixes appended to a request's response URI
const (
	OnResult = "/onResult"
	OnStatus = "/onStatus"
)

// StatusCode represents remoting status codes.
type StatusCode string

// Common remoting status codes
const (
	StatusCallFailed     StatusCode = "NetConnection.Call.Failed"
	StatusCallBadVersion StatusCode = "NetConnection.Call.BadVersion"
	StatusCallProhibited StatusCode = "NetConnection.Call.Prohibited"
)

// StatusLevel represents the level of a status message.
type StatusLevel string

// Status levels
const (
	StatusLevelStatus  StatusLevel = "status"
	StatusLevelError   StatusLevel = "error"
	StatusLevelWarning StatusLevel = "warning"
)

// StatusObject represents a status object in onStatus responses.
type StatusObject struct {
	Level       StatusLevel
	Code        StatusCode
	Description string
	Details     string
}

// Value converts the status to an anonymous AMF object. Details is
// omitted when empty.
func (s StatusObject) Value() *amf.Object {
	elements := []amf.Element{
		amf.NewElement("level", amf.String(s.Level)),
		amf.NewElement("code", amf.String(s.Code)),
		amf.NewElement("description", amf.String(s.Description)),
	}
	if s.Details != "" {
		elements = append(elements, amf.NewElement("details", amf.String(s.Details)))
	}
	return &amf.Object{Elements: elements}
}

// Result builds the successful response to request, e.g. "/1/onResult"
func Result(request Message, body amf.Value) Message {
	return Message{
		TargetURI:   request.ResponseURI + OnResult,
		ResponseURI: "null",
		Body:        body,
	}
}

// Status builds the failure response to request, e.g. "/1/onStatus"
func Status(request Message, status StatusObject) Message {
	return Message{
		TargetURI:   request.ResponseURI + OnStatus,
		ResponseURI: "null",
		Body:        status.Value(),
	}
}

// Error builds an error level onStatus response
func Error(request Message, code StatusCode, description string) Message {
	return Status(request, StatusObject{
		Level:       StatusLevelError,
		Code:        code,
		Description: description,
	})
}
