package prsproto

import (
	"errors"
	"fmt"
)

// MessageType identifies what a datagram asks for, or that it is a reply.
type MessageType uint8

const (
	RequestPort MessageType = iota
	KeepAlive
	ClosePort
	LookupPort
	Stop
	Response
)

var messageTypeNames = [...]string{
	RequestPort: "REQUEST_PORT",
	KeepAlive:   "KEEP_ALIVE",
	ClosePort:   "CLOSE_PORT",
	LookupPort:  "LOOKUP_PORT",
	Stop:        "STOP",
	Response:    "RESPONSE",
}

func (t MessageType) Valid() bool { return int(t) < len(messageTypeNames) }

func (t MessageType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
	return messageTypeNames[t]
}

// Status is the outcome carried by a RESPONSE. Requests carry the zero value.
type Status uint8

const (
	Success Status = iota
	ServiceInUse
	AllPortsBusy
	ServiceNotFound
	UndefinedError
)

var statusNames = [...]string{
	Success:         "SUCCESS",
	ServiceInUse:    "SERVICE_IN_USE",
	AllPortsBusy:    "ALL_PORTS_BUSY",
	ServiceNotFound: "SERVICE_NOT_FOUND",
	UndefinedError:  "UNDEFINED_ERROR",
}

func (s Status) Valid() bool { return int(s) < len(statusNames) }

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
	return statusNames[s]
}

// Message is the decoded form of one datagram.
type Message struct {
	Type        MessageType
	ServiceName string
	Port        uint16
	Status      Status
}

// String renders the canonical debug form, e.g. {RESPONSE, SVC1, 40000, SUCCESS}.
func (m Message) String() string {
	return fmt.Sprintf("{%s, %s, %d, %s}", m.Type, m.ServiceName, m.Port, m.Status)
}

// NewResponse builds a RESPONSE message.
func NewResponse(serviceName string, port uint16, status Status) Message {
	return Message{Type: Response, ServiceName: serviceName, Port: port, Status: status}
}

// ParseMessageType maps a canonical name such as "KEEP_ALIVE" back to its value.
func ParseMessageType(name string) (MessageType, error) {
	for i, n := range messageTypeNames {
		if n == name {
			return MessageType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown message type %q", name)
}

var (
	ErrNameTooLong   = errors.New("service name exceeds wire limit")
	ErrUnknownKind   = errors.New("unknown message type")
	ErrUnknownStatus = errors.New("unknown status")
)

// ProtocolError reports a datagram that could not be decoded.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("prs protocol: %s: %v", e.Reason, e.Err)
	}
	return "prs protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsProtocolError reports whether err is, or wraps, a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
