package prsproto

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageString(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "allocated response",
			msg:  NewResponse("SVC1", 40000, Success),
			want: "{RESPONSE, SVC1, 40000, SUCCESS}",
		},
		{
			name: "empty service name",
			msg:  NewResponse("", 0, Success),
			want: "{RESPONSE, , 0, SUCCESS}",
		},
		{
			name: "request renders zero status",
			msg:  Message{Type: KeepAlive, ServiceName: "SVC1", Port: 40000},
			want: "{KEEP_ALIVE, SVC1, 40000, SUCCESS}",
		},
		{
			name: "busy",
			msg:  NewResponse("SVC9", 0, AllPortsBusy),
			want: "{RESPONSE, SVC9, 0, ALL_PORTS_BUSY}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.String())
		})
	}
}

func TestEncodeDecodeEveryKind(t *testing.T) {
	kinds := []MessageType{RequestPort, KeepAlive, ClosePort, LookupPort, Stop, Response}
	statuses := []Status{Success, ServiceInUse, AllPortsBusy, ServiceNotFound, UndefinedError}

	for _, kind := range kinds {
		for _, status := range statuses {
			msg := Message{Type: kind, ServiceName: "FT Server", Port: 40042, Status: status}
			t.Run(msg.String(), func(t *testing.T) {
				data, err := Encode(msg)
				require.NoError(t, err)
				require.Len(t, data, MessageSize)

				got, err := Decode(data)
				require.NoError(t, err)
				assert.Equal(t, msg, got)
			})
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	data, err := Encode(Message{Type: LookupPort, ServiceName: "AB", Port: 0x9c40, Status: ServiceNotFound})
	require.NoError(t, err)

	assert.Equal(t, byte(LookupPort), data[0])
	assert.Equal(t, []byte("AB"), data[1:3])
	assert.Equal(t, make([]byte, MaxServiceNameLen-2), data[3:51])
	assert.Equal(t, []byte{0x9c, 0x40}, data[51:53])
	assert.Equal(t, byte(ServiceNotFound), data[53])
}

func TestEncodeRejectsMalformed(t *testing.T) {
	_, err := Encode(Message{Type: RequestPort, ServiceName: strings.Repeat("x", MaxServiceNameLen+1)})
	assert.ErrorIs(t, err, ErrNameTooLong)

	_, err = Encode(Message{Type: MessageType(42)})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Encode(Message{Type: Response, Status: Status(9)})
	assert.ErrorIs(t, err, ErrUnknownStatus)

	name := strings.Repeat("y", MaxServiceNameLen)
	data, err := Encode(Message{Type: RequestPort, ServiceName: name})
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, name, got.ServiceName)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	valid, err := Encode(Message{Type: RequestPort, ServiceName: "SVC1"})
	require.NoError(t, err)

	mutate := func(fn func([]byte)) []byte {
		b := append([]byte(nil), valid...)
		fn(b)
		return b
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "empty", data: nil},
		{name: "truncated", data: valid[:MessageSize-1]},
		{name: "oversized", data: append(append([]byte(nil), valid...), 0)},
		{name: "unknown kind", data: mutate(func(b []byte) { b[0] = 6 }), wantErr: ErrUnknownKind},
		{name: "unknown status", data: mutate(func(b []byte) { b[53] = 5 }), wantErr: ErrUnknownStatus},
		{name: "bytes after terminator", data: mutate(func(b []byte) { b[10] = 'z' })},
		{name: "invalid utf8", data: mutate(func(b []byte) { b[1] = 0xff })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.True(t, IsProtocolError(err))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
		})
	}
}

func TestParseMessageType(t *testing.T) {
	kind, err := ParseMessageType("CLOSE_PORT")
	require.NoError(t, err)
	assert.Equal(t, ClosePort, kind)

	_, err = ParseMessageType("OPEN_PORT")
	assert.Error(t, err)
}
