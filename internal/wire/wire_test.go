package wire

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Version: Version, MsgType: MsgFrame, MsgLen: 123, MsgID: 456}
	enc := h.Encode()

	got, err := DecodeHeader(enc[:])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != h {
		t.Errorf("DecodeHeader = %+v, want %+v", got, h)
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	if _, err := DecodeHeader([]byte{1, 2, 3}); err == nil {
		t.Error("DecodeHeader on short buffer: want error, got nil")
	}
}

func TestDecodeHeaderOversizeBody(t *testing.T) {
	h := Header{Version: Version, MsgType: MsgFrame, MsgLen: MaxBodySize + 1}
	enc := h.Encode()
	if _, err := DecodeHeader(enc[:]); err == nil {
		t.Error("DecodeHeader with oversize MsgLen: want error, got nil")
	}
}

func TestWriteReadMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	body := FrameBody{Timestamp: 42, Data: []byte{1, 2, 3, 4}}
	if err := WriteMessage(&buf, MsgFrame, 7, body); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	h, raw, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if h.MsgType != MsgFrame || h.MsgID != 7 {
		t.Errorf("header = %+v", h)
	}

	var got FrameBody
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if got.Timestamp != body.Timestamp || !bytes.Equal(got.Data, body.Data) {
		t.Errorf("body = %+v, want %+v", got, body)
	}
}

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	body := FrameBody{Timestamp: 99, Data: []byte("hello")}
	raw, err := EncodeMessage(MsgFrame, 3, body)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	h, rawBody, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if h.MsgType != MsgFrame || h.MsgID != 3 {
		t.Errorf("header = %+v", h)
	}

	var got FrameBody
	if err := json.Unmarshal(rawBody, &got); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if got.Timestamp != body.Timestamp || string(got.Data) != string(body.Data) {
		t.Errorf("body = %+v, want %+v", got, body)
	}
}

func TestEncodeMessageConcurrentReuseSafe(t *testing.T) {
	// EncodeMessage pools its scratch buffer; concurrent callers must
	// each get back an independent, correct copy.
	const n = 50
	results := make(chan []byte, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			raw, err := EncodeMessage(MsgFrame, uint32(i), FrameBody{Timestamp: uint64(i)})
			if err != nil {
				t.Error(err)
				results <- nil
				return
			}
			results <- raw
		}()
	}

	seen := make(map[uint32]bool, n)
	for i := 0; i < n; i++ {
		raw := <-results
		if raw == nil {
			continue
		}
		h, _, err := DecodeMessage(raw)
		if err != nil {
			t.Fatalf("DecodeMessage: %v", err)
		}
		seen[h.MsgID] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct msgIDs, want %d", len(seen), n)
	}
}
