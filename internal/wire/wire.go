// Package wire implements the 10-byte header framing used between the
// transport server and its clients: a fixed header describing a JSON
// body that follows it on the same connection.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// HeaderSize is the fixed length of a frame header, in bytes.
const HeaderSize = 10

// Protocol version understood by this build.
const Version = 1

// Message types carried in the header's msgType byte.
const (
	MsgHello     = 0x01 // client -> server handshake
	MsgSubscribe = 0x02 // client -> server: subscribe request (the transport clones a receiver at upgrade and does not act on it)
	MsgFrame     = 0x03 // server -> client: a borrowed frame
	MsgHeartbeat = 0x04 // either direction: keepalive
	MsgClose     = 0x05 // either direction: graceful teardown, optional reason in body
)

// MaxBodySize bounds msgLen to guard against a corrupt or hostile
// header driving an unbounded allocation.
const MaxBodySize = 16 << 20

// Header is the fixed-size preamble of every message.
type Header struct {
	Version byte
	MsgType byte
	MsgLen  uint32
	MsgID   uint32
}

// Encode writes the 10-byte header in wire order.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	buf[0] = h.Version
	buf[1] = h.MsgType
	binary.LittleEndian.PutUint32(buf[2:6], h.MsgLen)
	binary.LittleEndian.PutUint32(buf[6:10], h.MsgID)
	return buf
}

// DecodeHeader parses a 10-byte header previously produced by Encode.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("wire: short header: %d bytes", len(buf))
	}
	h := Header{
		Version: buf[0],
		MsgType: buf[1],
		MsgLen:  binary.LittleEndian.Uint32(buf[2:6]),
		MsgID:   binary.LittleEndian.Uint32(buf[6:10]),
	}
	if h.MsgLen > MaxBodySize {
		return Header{}, fmt.Errorf("wire: body length %d exceeds max %d", h.MsgLen, MaxBodySize)
	}
	return h, nil
}

// WriteMessage frames body as a header followed by its JSON encoding
// and writes them to w as two calls, header first.
func WriteMessage(w io.Writer, msgType byte, msgID uint32, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("wire: marshal body: %w", err)
	}

	h := Header{Version: Version, MsgType: msgType, MsgLen: uint32(len(payload)), MsgID: msgID}
	hdr := h.Encode()

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write body: %w", err)
	}
	return nil
}

// scratchPool recycles the bytes.Buffer EncodeMessage builds each
// message in: a connection pushing frames on every heartbeat tick
// would otherwise allocate one buffer per tick per client.
var scratchPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// EncodeMessage builds one header-plus-body message as a single byte
// slice, for transports (like a WebSocket frame) that carry a whole
// message as one atomic write rather than a byte stream. The returned
// slice is a fresh copy the caller owns outright.
func EncodeMessage(msgType byte, msgID uint32, body any) ([]byte, error) {
	buf := scratchPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer scratchPool.Put(buf)

	if err := WriteMessage(buf, msgType, msgID, body); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// DecodeMessage parses a whole header-plus-body message previously
// built by EncodeMessage (or one WebSocket message payload).
func DecodeMessage(raw []byte) (Header, []byte, error) {
	if len(raw) < HeaderSize {
		return Header{}, nil, fmt.Errorf("wire: message shorter than header: %d bytes", len(raw))
	}
	h, err := DecodeHeader(raw[:HeaderSize])
	if err != nil {
		return Header{}, nil, err
	}
	body := raw[HeaderSize:]
	if uint32(len(body)) != h.MsgLen {
		return Header{}, nil, fmt.Errorf("wire: body length %d does not match header %d", len(body), h.MsgLen)
	}
	return h, body, nil
}

// ReadMessage reads one header-plus-body message from r.
func ReadMessage(r io.Reader) (Header, []byte, error) {
	var hdrBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		return Header{}, nil, err
	}
	h, err := DecodeHeader(hdrBuf[:])
	if err != nil {
		return Header{}, nil, err
	}

	body := make([]byte, h.MsgLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Header{}, nil, fmt.Errorf("wire: read body: %w", err)
	}
	return h, body, nil
}

// FrameBody is the JSON body of a MsgFrame message: a borrowed View's
// timestamp and payload, copied out before the originating view is
// released.
type FrameBody struct {
	Timestamp uint64 `json:"ts"`
	Data      []byte `json:"data"`
}

// CloseBody is the JSON body of a MsgClose message.
type CloseBody struct {
	Reason string `json:"reason"`
}

// HelloBody is the JSON body of a MsgHello message.
type HelloBody struct {
	ClientID string `json:"client_id"`
}
