package ptyio

import (
	"bytes"
	"testing"
	"time"

	"github.com/fugue-mux/fugue/internal/muxerr"
)

func TestStart_EchoAndExit(t *testing.T) {
	h, err := Start(Spawn{
		Command: []string{"sh", "-c", "echo hello; exit 3"},
		Size:    Size{Cols: 80, Rows: 24},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var buf bytes.Buffer
	deadline := time.After(5 * time.Second)
	chunk := make([]byte, 4096)
readLoop:
	for {
		select {
		case <-h.Done():
			for {
				n, err := h.Read(chunk)
				if n > 0 {
					buf.Write(chunk[:n])
				}
				if err != nil {
					break readLoop
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for child exit")
		default:
			n, _ := h.Read(chunk)
			if n > 0 {
				buf.Write(chunk[:n])
			}
		}
	}

	if !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Fatalf("expected output to contain %q, got %q", "hello", buf.String())
	}

	code, ok := h.ExitCode()
	if !ok {
		t.Fatal("expected ExitCode to be available after Done()")
	}
	if code != 3 {
		t.Fatalf("ExitCode = %d, want 3", code)
	}
}

func TestWrite_AfterKillFails(t *testing.T) {
	h, err := Start(Spawn{
		Command: []string{"sleep", "30"},
		Size:    Size{Cols: 80, Rows: 24},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	_, err = h.Write([]byte("x"))
	if kind, ok := muxerr.KindOf(err); !ok || kind != muxerr.PtyClosed {
		t.Fatalf("Write after Kill: got %v, want PtyClosed", err)
	}
}

func TestStart_EmptyCommand(t *testing.T) {
	_, err := Start(Spawn{Command: nil})
	if kind, ok := muxerr.KindOf(err); !ok || kind != muxerr.InvalidArgument {
		t.Fatalf("Start(nil): got %v, want InvalidArgument", err)
	}
}
