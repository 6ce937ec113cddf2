package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestEncoder_WritesNewlineTerminatedJSON(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	if err := enc.Write(NewExecFrame("1", "x=1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := enc.Write(NewShutdownFrame()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("expected output to end with a newline")
	}
}

func TestDecoder_ReadFrame_SequenceAndEOF(t *testing.T) {
	input := "{\"type\":\"ready\"}\n{\"type\":\"exec_result\",\"id\":\"1\",\"output\":\"\",\"response\":\"2\"}\n"
	dec := NewDecoder(strings.NewReader(input), 0)

	f, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.FrameType() != FrameTypeReady {
		t.Fatalf("expected ready frame, got %v", f.FrameType())
	}

	f, err = dec.ReadFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.FrameType() != FrameTypeExecResult {
		t.Fatalf("expected exec_result frame, got %v", f.FrameType())
	}

	_, err = dec.ReadFrame()
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestDecoder_ReadFrame_UnknownTypeReturnsNilNil(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"type":"future"}`+"\n"), 0)
	f, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != nil {
		t.Errorf("expected nil frame, got %#v", f)
	}
}

func TestDecoder_ReadFrame_MalformedJSONIsProtocolError(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{not json`+"\n"), 0)
	_, err := dec.ReadFrame()
	if err == nil {
		t.Fatal("expected an error")
	}
	var protoErr *ProtocolError
	if !errorsAs(err, &protoErr) {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
}

func TestDecoder_ReadFrame_OversizedLineIsFrameTooLarge(t *testing.T) {
	huge := `{"type":"exec","id":"1","code":"` + strings.Repeat("a", 100) + `"}` + "\n"
	dec := NewDecoder(strings.NewReader(huge), 10)

	_, err := dec.ReadFrame()
	var tooLarge *FrameTooLarge
	if !errorsAs(err, &tooLarge) {
		t.Fatalf("expected *FrameTooLarge, got %T: %v", err, err)
	}
}

// errorsAs is a tiny local wrapper so this table of tests doesn't need to
// import errors just for As in every case.
func errorsAs(err error, target interface{}) bool {
	switch t := target.(type) {
	case **ProtocolError:
		pe, ok := err.(*ProtocolError)
		if ok {
			*t = pe
		}
		return ok
	case **FrameTooLarge:
		fl, ok := err.(*FrameTooLarge)
		if ok {
			*t = fl
		}
		return ok
	}
	return false
}
