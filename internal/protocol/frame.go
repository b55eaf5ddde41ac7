// internal/protocol/frame.go
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

var (
	// ErrFrameTooLarge and ErrFrameTooShort are framing errors: the stream
	// can no longer be trusted and the connection must be dropped.
	ErrFrameTooLarge = errors.New("frame exceeds max payload length")
	ErrFrameTooShort = errors.New("frame shorter than header")
	ErrBadTerminator = errors.New("frame not followed by terminator")

	// The remaining errors discard a single message.
	ErrUnknownType      = errors.New("unknown message type")
	ErrPayloadSize      = errors.New("payload size mismatch")
	ErrMalformedPayload = errors.New("malformed payload")
)

// IsFraming reports whether err leaves the byte stream out of sync.
func IsFraming(err error) bool {
	return errors.Is(err, ErrFrameTooLarge) ||
		errors.Is(err, ErrFrameTooShort) ||
		errors.Is(err, ErrBadTerminator) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// Message is a decoded frame. PayloadSize is filled in by Decode and
// recomputed by Encode.
type Message struct {
	Type        MessageType
	SenderID    uint32
	PayloadSize uint32
	Payload     Payload
}

// NewMessage builds a message whose type is taken from the payload.
func NewMessage(senderID uint32, p Payload) *Message {
	return &Message{Type: p.Type(), SenderID: senderID, Payload: p}
}

// ServerMessage builds a message sent on behalf of the server.
func ServerMessage(p Payload) *Message {
	return NewMessage(ServerID, p)
}

// SuccessMessage and ErrorMessage build the two direct reply shapes.
func SuccessMessage(data int32) *Message {
	return ServerMessage(&Success{Data: data})
}

func ErrorMessage(code ResponseCode) *Message {
	return ServerMessage(&Error{Code: code})
}

// Encode serializes m into a complete frame, length prefix and terminator
// included.
func Encode(m *Message) ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("%w: %s has no payload", ErrMalformedPayload, m.Type)
	}
	if m.Payload.Type() != m.Type {
		return nil, fmt.Errorf("%w: %s payload in %s message", ErrMalformedPayload, m.Payload.Type(), m.Type)
	}

	var body bytes.Buffer
	if err := m.Payload.EncodeTo(&body); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type, err)
	}
	frameLen := headerLength + body.Len()
	if frameLen > MaxPayloadLength {
		return nil, fmt.Errorf("encode %s: %w (%d bytes)", m.Type, ErrFrameTooLarge, frameLen)
	}

	out := make([]byte, 0, 4+frameLen+1)
	out = binary.BigEndian.AppendUint32(out, uint32(frameLen))
	out = binary.BigEndian.AppendUint32(out, uint32(m.Type))
	out = binary.BigEndian.AppendUint32(out, m.SenderID)
	out = binary.BigEndian.AppendUint32(out, uint32(body.Len()))
	out = append(out, body.Bytes()...)
	out = append(out, Terminator)
	m.PayloadSize = uint32(body.Len())
	return out, nil
}

// WriteMessage encodes m and writes the whole frame to w.
func WriteMessage(w io.Writer, m *Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadFrame reads one frame from r and returns the bytes between the
// length prefix and the terminator.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	frameLen := binary.BigEndian.Uint32(lenBuf[:])
	if frameLen > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, frameLen)
	}
	if frameLen < headerLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, frameLen)
	}

	frame := make([]byte, frameLen+1)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	if frame[frameLen] != Terminator {
		return nil, fmt.Errorf("%w: got 0x%02x", ErrBadTerminator, frame[frameLen])
	}
	return frame[:frameLen], nil
}

// Decode parses a frame body as returned by ReadFrame.
func Decode(frame []byte) (*Message, error) {
	if len(frame) < headerLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	m := &Message{
		Type:        MessageType(binary.BigEndian.Uint32(frame[0:4])),
		SenderID:    binary.BigEndian.Uint32(frame[4:8]),
		PayloadSize: binary.BigEndian.Uint32(frame[8:12]),
	}
	body := frame[headerLength:]
	if int(m.PayloadSize) != len(body) {
		return nil, fmt.Errorf("%w: header says %d, frame holds %d", ErrPayloadSize, m.PayloadSize, len(body))
	}

	p, err := NewPayload(m.Type)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(body)
	if err := p.Decode(r); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %s payload truncated", ErrPayloadSize, m.Type)
		}
		return nil, fmt.Errorf("decode %s: %w", m.Type, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %s left %d bytes unread", ErrPayloadSize, m.Type, r.Len())
	}
	m.Payload = p
	return m, nil
}

// ReadMessage reads and decodes the next frame from r.
func ReadMessage(r io.Reader) (*Message, error) {
	frame, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Decode(frame)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeInt32(buf *bytes.Buffer, v int32) {
	writeUint32(buf, uint32(v))
}

// writeString writes s into a NUL padded field of the given width,
// truncating on a rune boundary when s does not fit.
func writeString(buf *bytes.Buffer, s string, width int) {
	s = Truncate(s, width)
	buf.WriteString(s)
	for i := len(s); i < width; i++ {
		buf.WriteByte(0)
	}
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readInt32(r *bytes.Reader) (int32, error) {
	v, err := readUint32(r)
	return int32(v), err
}

func readString(r *bytes.Reader, width int) (string, error) {
	b := make([]byte, width)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
