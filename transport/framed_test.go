package transport

import (
	"bytes"
	"testing"
)

func TestFramedConnRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramedConn(&buf)

	want := []byte("hello mesh")
	if err := f.WriteFrame(want); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := f.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	if !bytes.Equal(got, want) {
		t.Errorf("ReadFrame() = %q, want %q", got, want)
	}
}

func TestFramedConnMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramedConn(&buf)

	frames := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, fr := range frames {
		if err := f.WriteFrame(fr); err != nil {
			t.Fatalf("WriteFrame(%q): %v", fr, err)
		}
	}

	for _, want := range frames {
		got, err := f.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("ReadFrame() = %q, want %q", got, want)
		}
	}
}

func TestFramedConnRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramedConn(&buf)
	f.MaxFrameSize = 4

	if err := f.WriteFrame([]byte("toolong")); err != ErrMessageTooLarge {
		t.Fatalf("WriteFrame() error = %v, want ErrMessageTooLarge", err)
	}
}
