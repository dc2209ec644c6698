package server

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// The login protocol uses a single fixed 33 byte frame in both
// directions of the handshake: 16 bytes username, 16 bytes password
// (both NUL padded), one op code byte.
const RequestFrameSize = 33

// Request op codes sent by the client.
const (
	OpLoginAttempt   byte = 0x10
	OpCreateAccount  byte = 0x20
	OpChangePassword byte = 0x30
)

// Result codes sent back to the client. A successful login attempt is
// followed by the account id as a little endian uint32.
const (
	ResultLoginSuccess          byte = 0x01
	ResultLoginError            byte = 0x02
	ResultCreateSuccess         byte = 0x03
	ResultCreateError           byte = 0x04
	ResultChangePasswordSuccess byte = 0x05
	ResultChangePasswordError   byte = 0x06
)

// Request is a decoded login frame.
type Request struct {
	Username string
	Password string
	Op       byte
}

// ErrMalformedFrame is returned for frames whose credential fields are
// not clean NUL padded ASCII.
var ErrMalformedFrame = fmt.Errorf("malformed login frame")

// ParseRequest decodes a raw 33 byte frame.
func ParseRequest(frame []byte) (Request, error) {
	if len(frame) != RequestFrameSize {
		return Request{}, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedFrame, len(frame), RequestFrameSize)
	}

	username, err := decodeField(frame[0:16])
	if err != nil {
		return Request{}, fmt.Errorf("%w: username: %v", ErrMalformedFrame, err)
	}
	password, err := decodeField(frame[16:32])
	if err != nil {
		return Request{}, fmt.Errorf("%w: password: %v", ErrMalformedFrame, err)
	}

	return Request{
		Username: username,
		Password: password,
		Op:       frame[32],
	}, nil
}

// decodeField cuts a NUL padded field down to its content and rejects
// control bytes or non-ASCII garbage.
func decodeField(field []byte) (string, error) {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		for _, b := range field[i:] {
			if b != 0 {
				return "", fmt.Errorf("padding after terminator")
			}
		}
		field = field[:i]
	}
	for _, b := range field {
		if b < 0x20 || b > 0x7e {
			return "", fmt.Errorf("non-printable byte 0x%02x", b)
		}
	}
	return string(field), nil
}

// EncodeRequest builds a client frame; used by tests and tooling.
func EncodeRequest(req Request) ([]byte, error) {
	if len(req.Username) > 16 || len(req.Password) > 16 {
		return nil, fmt.Errorf("%w: credential field too long", ErrMalformedFrame)
	}
	frame := make([]byte, RequestFrameSize)
	copy(frame[0:16], req.Username)
	copy(frame[16:32], req.Password)
	frame[32] = req.Op
	return frame, nil
}

// EncodeLoginSuccess builds the success reply for a login attempt: the
// result code followed by the account id.
func EncodeLoginSuccess(accountID uint32) []byte {
	reply := make([]byte, 5)
	reply[0] = ResultLoginSuccess
	binary.LittleEndian.PutUint32(reply[1:], accountID)
	return reply
}
