package prsproto

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

const (
	// MaxServiceNameLen is the width of the NUL padded name field.
	MaxServiceNameLen = 50

	// MessageSize is the exact length of every encoded datagram.
	MessageSize = 1 + MaxServiceNameLen + 2 + 1

	nameOffset   = 1
	portOffset   = nameOffset + MaxServiceNameLen
	statusOffset = portOffset + 2
)

// Encode serialises m into a fresh MessageSize buffer.
func Encode(m Message) ([]byte, error) {
	buf := make([]byte, MessageSize)
	if err := EncodeTo(buf, m); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeTo writes m into buf, which must hold at least MessageSize bytes.
func EncodeTo(buf []byte, m Message) error {
	if len(buf) < MessageSize {
		return fmt.Errorf("encode: buffer of %d bytes is smaller than %d", len(buf), MessageSize)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("encode %d: %w", uint8(m.Type), ErrUnknownKind)
	}
	if !m.Status.Valid() {
		return fmt.Errorf("encode %d: %w", uint8(m.Status), ErrUnknownStatus)
	}
	if len(m.ServiceName) > MaxServiceNameLen {
		return fmt.Errorf("encode %q: %w", m.ServiceName, ErrNameTooLong)
	}

	buf[0] = byte(m.Type)
	name := buf[nameOffset:portOffset]
	clear(name)
	copy(name, m.ServiceName)
	binary.BigEndian.PutUint16(buf[portOffset:statusOffset], m.Port)
	buf[statusOffset] = byte(m.Status)
	return nil
}

// Decode parses one datagram payload. Anything other than a well formed
// MessageSize payload yields a *ProtocolError.
func Decode(data []byte) (Message, error) {
	if len(data) != MessageSize {
		return Message{}, &ProtocolError{Reason: fmt.Sprintf("datagram is %d bytes, want %d", len(data), MessageSize)}
	}

	kind := MessageType(data[0])
	if !kind.Valid() {
		return Message{}, &ProtocolError{Reason: fmt.Sprintf("message type byte %d", data[0]), Err: ErrUnknownKind}
	}
	status := Status(data[statusOffset])
	if !status.Valid() {
		return Message{}, &ProtocolError{Reason: fmt.Sprintf("status byte %d", data[statusOffset]), Err: ErrUnknownStatus}
	}

	field := data[nameOffset:portOffset]
	name := field
	if i := bytes.IndexByte(field, 0); i >= 0 {
		name = field[:i]
		for _, b := range field[i:] {
			if b != 0 {
				return Message{}, &ProtocolError{Reason: "service name has bytes after terminator"}
			}
		}
	}
	if !utf8.Valid(name) {
		return Message{}, &ProtocolError{Reason: "service name is not valid UTF-8"}
	}

	return Message{
		Type:        kind,
		ServiceName: string(name),
		Port:        binary.BigEndian.Uint16(data[portOffset:statusOffset]),
		Status:      status,
	}, nil
}
