package netlisten

import (
	"bytes"
	"testing"
)

func TestWriteReadMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{1, 2, 3, 4, 5}
	if err := writeMessage(&buf, ChangeBlockStatus, payload); err != nil {
		t.Fatalf("writeMessage: %v", err)
	}

	typ, got, err := readMessage(&buf)
	if err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if typ != ChangeBlockStatus {
		t.Fatalf("type = %v, want ChangeBlockStatus", typ)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %v, want %v", got, payload)
	}
}

func TestReadMessageZeroPayloadReturnsNil(t *testing.T) {
	var buf bytes.Buffer
	if err := writeMessage(&buf, Ping, nil); err != nil {
		t.Fatalf("writeMessage: %v", err)
	}
	typ, payload, err := readMessage(&buf)
	if err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if typ != Ping || payload != nil {
		t.Fatalf("got type=%v payload=%v, want Ping/nil", typ, payload)
	}
}

func TestReadMessageRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0, byte(Ping), 0, 0, 0, 0})
	if _, _, err := readMessage(buf); err == nil {
		t.Fatalf("expected an error for a bad magic signature")
	}
}

func TestDecodeBlockStatusChange(t *testing.T) {
	want := blockStatusChange{ID: 42, Status: 3}
	buf := []byte{42, 0, 0, 0, 3}
	got, err := decodeBlockStatusChange(buf)
	if err != nil {
		t.Fatalf("decodeBlockStatusChange: %v", err)
	}
	if got != want {
		t.Fatalf("decodeBlockStatusChange() = %+v, want %+v", got, want)
	}
}
