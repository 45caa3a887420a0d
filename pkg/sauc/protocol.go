package sauc

import (
	"encoding/binary"
	"encoding/json"
)

// Binary frame layout (both directions):
//
//	Byte 0: version (4 bits) + header_size (4 bits)
//	Byte 1: message_type (4 bits) + message_type_flags (4 bits)
//	Byte 2: serialization (4 bits) + compression (4 bits)
//	Byte 3: reserved
//	Byte 4-7: payload size (big-endian uint32)
//	Byte 8+: payload
//
// Client frames always use version 1 with a 4-byte header and no
// compression, so the three headers below are fixed words.
const (
	headerFullClient uint32 = 0x11101000 // full client request, JSON payload
	headerAudioOnly  uint32 = 0x11200000 // audio chunk, raw payload
	headerAudioLast  uint32 = 0x11220000 // final audio chunk
)

// Server message types (high nibble of byte 1).
const (
	msgTypeFullServer byte = 0x09
	msgTypeError      byte = 0x0F
)

// flagLastPackage in the low nibble of byte 1 marks the final message of a
// session, whatever the message type.
const flagLastPackage byte = 0x03

// buildFrame prepends the fixed 4-byte header and the big-endian payload
// size to payload.
func buildFrame(header uint32, payload []byte) []byte {
	frame := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], header)
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[8:], payload)
	return frame
}

// serverMessage is one decoded server frame. Text carries the transcript
// snapshot, empty when the frame has none. Last reports the final-package
// flag. Err is set for error frames.
type serverMessage struct {
	Text string
	Last bool
	Err  *Error
}

// parseServerMessage decodes a binary server frame.
//
// Error frames (type 0x0F) carry a big-endian error code after the header.
// Full server responses (type 0x09) carry a JSON payload whose result is
// either an object with a text field or a bare string. Anything else is
// skipped rather than failed, but the last-package flag is honored even on
// frames that carry no usable payload, so a truncated final frame still
// ends the session.
func parseServerMessage(data []byte) serverMessage {
	var msg serverMessage
	if len(data) < 4 {
		return msg
	}

	msgType := (data[1] >> 4) & 0x0F
	msg.Last = data[1]&0x0F == flagLastPackage

	switch msgType {
	case msgTypeError:
		var code uint32
		if len(data) >= 8 {
			code = binary.BigEndian.Uint32(data[4:8])
		}
		msg.Err = &Error{Code: int(code), Message: "upstream error"}
		return msg
	case msgTypeFullServer:
		// fall through to payload parsing
	default:
		return msg
	}

	if len(data) < 12 {
		return msg
	}
	size := binary.BigEndian.Uint32(data[8:12])
	if int(size) > len(data)-12 {
		return msg
	}
	msg.Text = resultText(data[12 : 12+size])
	return msg
}

// resultText extracts the transcript from a full server response payload.
func resultText(payload []byte) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	raw, ok := body["result"]
	if !ok {
		return ""
	}

	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Text
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
