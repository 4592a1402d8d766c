package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/drillan/claudecode-model/internal/ccerr"
)

// Send serializes message to JSON and writes it to w as a length-prefixed
// frame: 4-byte big-endian length, then that many UTF-8 JSON bytes.
// Rejects payloads whose encoded size exceeds MaxMessageSize before
// writing anything.
func Send(w io.Writer, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return ccerr.NewIPCError(fmt.Sprintf("failed to encode IPC message: %v", err), err)
	}
	if len(payload) > MaxMessageSize {
		return &ccerr.IPCMessageSizeError{Size: len(payload), MaxSize: MaxMessageSize, AtSend: true}
	}

	prefix := make([]byte, LengthPrefixSize)
	binary.BigEndian.PutUint32(prefix, uint32(len(payload)))

	if _, err := w.Write(prefix); err != nil {
		return ccerr.NewIPCError("failed to write length prefix", err)
	}
	if _, err := w.Write(payload); err != nil {
		return ccerr.NewIPCError("failed to write payload", err)
	}
	return nil
}

// Receive reads one length-prefixed frame from r and unmarshals its JSON
// payload into v (a pointer). Distinguishes oversize, truncation, and
// malformed-JSON failures per spec.md §4.1.
func Receive(r io.Reader, v any) error {
	prefix := make([]byte, LengthPrefixSize)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return ccerr.NewIPCError(
			fmt.Sprintf("incomplete length prefix: expected %d bytes", LengthPrefixSize), err,
		)
	}

	length := binary.BigEndian.Uint32(prefix)
	if length > MaxMessageSize {
		return &ccerr.IPCMessageSizeError{Size: int(length), MaxSize: MaxMessageSize, AtSend: false}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return ccerr.NewIPCError(
			fmt.Sprintf("incomplete payload: expected %d bytes", length), err,
		)
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return ccerr.NewIPCError(fmt.Sprintf("invalid JSON in IPC message: %v", err), err)
	}
	return nil
}

// ReceiveRaw reads one length-prefixed frame and returns its decoded
// RawResponse, for callers on the bridge side that need to discriminate
// result vs. error without knowing the shape ahead of time.
func ReceiveRaw(r io.Reader) (RawResponse, error) {
	var raw RawResponse
	err := Receive(r, &raw)
	return raw, err
}
