package remotekv

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/latticekv/lattice/internal/kvvalue"
)

// maxFrameBytes bounds an inbound frame so a misbehaving or malicious
// endpoint can't make the client allocate unbounded memory decoding the
// length prefix.
const maxFrameBytes = 16 << 20

// writeFrame JSON-encodes v and writes it as a 4-byte big-endian
// length-prefixed frame, the wire format described for the remote RPCs.
func writeFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// readFrame reads one length-prefixed frame and JSON-decodes it into v.
func readFrame(r io.Reader, v any) error {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return fmt.Errorf("read frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameBytes {
		return fmt.Errorf("frame of %d bytes exceeds max %d", n, maxFrameBytes)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read frame body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}

// wireValue is the over-the-wire shape of a kvvalue.Value.
type wireValue struct {
	Encoding kvvalue.Encoding `json:"encoding"`
	Data     []byte           `json:"data"`
}

func toWireValue(v kvvalue.Value) wireValue {
	return wireValue{Encoding: v.Encoding(), Data: kvvalue.Marshal(v)}
}

func (w wireValue) decode() (kvvalue.Value, error) {
	return kvvalue.Unmarshal(w.Encoding, w.Data)
}

// wireCheck, wireMutation, and wireReadRange mirror the reference
// implementation's protobuf request messages, reshaped as JSON frames.
type wireCheck struct {
	Key          []byte `json:"key"`
	Versionstamp []byte `json:"versionstamp,omitempty"`
}

type wireMutation struct {
	Key        []byte     `json:"key"`
	Kind       string     `json:"kind"`
	Value      *wireValue `json:"value,omitempty"`
	Operand    *uint64    `json:"operand,omitempty"`
	ExpireAtMs int64      `json:"expireAtMs,omitempty"`
}

type wireReadRange struct {
	Start   []byte `json:"start"`
	End     []byte `json:"end"`
	Limit   int    `json:"limit"`
	Reverse bool   `json:"reverse"`
}

type wireEntry struct {
	Key          []byte    `json:"key"`
	Value        wireValue `json:"value"`
	Versionstamp []byte    `json:"versionstamp"`
}

type snapshotReadRequest struct {
	Ranges []wireReadRange `json:"ranges"`
}

type snapshotReadResponse struct {
	ReadDisabled bool          `json:"readDisabled"`
	Ranges       []struct {
		Entries []wireEntry `json:"entries"`
	} `json:"ranges"`
}

type atomicWriteRequest struct {
	Checks    []wireCheck    `json:"checks"`
	Mutations []wireMutation `json:"mutations"`
}

// atomicWriteStatus mirrors the reference implementation's status enum,
// transported as a string rather than a protobuf enum tag.
type atomicWriteStatus string

const (
	statusSuccess                   atomicWriteStatus = "success"
	statusCheckFailure              atomicWriteStatus = "check-failure"
	statusUsageLimitExceeded        atomicWriteStatus = "usage-limit-exceeded"
	statusUnsupportedWrite          atomicWriteStatus = "unsupported-write"
	statusWriteDisabled             atomicWriteStatus = "write-disabled"
	statusQueueBacklogLimitExceeded atomicWriteStatus = "queue-backlog-limit-exceeded"
	statusUnspecified               atomicWriteStatus = "unspecified"
)

type atomicWriteResponse struct {
	Status       atomicWriteStatus `json:"status"`
	Versionstamp []byte            `json:"versionstamp,omitempty"`
}
