// Package transport implements the length-delimited framing protocol
// (spec §6) shared by the Unix-socket/TCP Connection Handler and the
// websocket gateway: each frame is a 4-byte big-endian length prefix
// followed by a JSON-encoded Frame.
//
// Grounded on kojo's server/websocket.go writeJSON/WSMessage shape
// (Type + json.RawMessage Data envelope), generalized from a
// websocket-native text frame to a raw byte-stream length prefix so
// the same Frame type rides over both a Unix socket and a websocket.
package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fugue-mux/fugue/internal/muxerr"
)

// MaxFrameSize bounds a single frame to guard against a corrupt or
// malicious length prefix exhausting memory.
const MaxFrameSize = 16 * 1024 * 1024

// Frame is the envelope every client<->daemon message rides in (spec
// §6's abridged message set: AttachSession, Output, PaneCreated, ...).
// Sequenced{seq, inner} envelopes (spec §3) are represented by setting
// Seq to a non-nil value wrapping the inner frame's own Type/Data.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Seq  *uint64         `json:"seq,omitempty"`
}

// Unwrap transparently removes a Sequenced envelope if present,
// returning the inner frame — a hard requirement per spec §4.12 so
// every response-recv path matches without seeing Sequenced{...}.
func (f Frame) Unwrap() Frame {
	if f.Seq == nil {
		return f
	}
	var inner Frame
	if err := json.Unmarshal(f.Data, &inner); err != nil {
		return f
	}
	return inner
}

// WriteFrame encodes v as a Frame's Data and writes the length-prefixed
// frame to w.
func WriteFrame(w io.Writer, frameType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", frameType, err)
	}
	return writeRaw(w, Frame{Type: frameType, Data: data})
}

// WriteRawFrame writes an already-constructed Frame (Data already
// encoded) without re-marshaling its payload — used by the Connection
// Handler's writer loop, which receives Frames from the Registry with
// Data already populated.
func WriteRawFrame(w io.Writer, f Frame) error {
	return writeRaw(w, f)
}

func writeRaw(w io.Writer, f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame envelope: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return muxerr.New(muxerr.FrameDecodeError, "frame exceeds max size")
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return muxerr.Wrap(muxerr.Disconnected, "write length prefix", err)
	}
	if _, err := w.Write(payload); err != nil {
		return muxerr.Wrap(muxerr.Disconnected, "write frame body", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed Frame from r, already unwrapped
// of any Sequenced envelope.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return Frame{}, muxerr.Wrap(muxerr.Disconnected, "connection closed", err)
		}
		return Frame{}, muxerr.Wrap(muxerr.Disconnected, "read length prefix", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return Frame{}, muxerr.New(muxerr.FrameDecodeError, "frame exceeds max size")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, muxerr.Wrap(muxerr.Disconnected, "read frame body", err)
	}
	var f Frame
	if err := json.Unmarshal(body, &f); err != nil {
		return Frame{}, muxerr.Wrap(muxerr.FrameDecodeError, "decode frame json", err)
	}
	return f.Unwrap(), nil
}
