// Package session saves and restores the labeling session: the label
// registry, the generator states, the current sample and when the session
// started.
//
// A session file is a small header followed by a zstd-compressed YAML
// document. Encoding is deterministic, so saving the same state twice yields
// identical bytes.
package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"peaklabeler/internal/fsutil"
	"peaklabeler/pkg/layers"
	"peaklabeler/pkg/rng"
)

const (
	// MagicNumber identifies session files (ASCII: "PLSS")
	MagicNumber = 0x53534c50
	// Version is the current session format version
	Version = 1

	// TimestampLayout formats session timestamps, e.g. 2024_0315_1342_07.
	TimestampLayout = "2006_0102_1504_05"

	// Extension is appended to default session file names.
	Extension = ".session"
)

// ErrMalformed is returned for a session file that cannot be decoded.
var ErrMalformed = errors.New("malformed session file")

// Snapshot is the persisted session state.
type Snapshot struct {
	SessionID string        `yaml:"session_id"`
	Username  string        `yaml:"username,omitempty"`
	Timestamp string        `yaml:"timestamp"`
	Index     int           `yaml:"index"`
	Layers    *layers.Model `yaml:"layers"`
	Random    rng.Snapshot  `yaml:"random"`
}

type fileHeader struct {
	Magic   uint32
	Version uint32
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// Timestamp formats t the way session files are stamped.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// DefaultFileName returns the file name a session started at timestamp is
// saved under when the caller does not pick one.
func DefaultFileName(timestamp string) string {
	return timestamp + Extension
}

// Encode serializes snap.
func Encode(snap *Snapshot) ([]byte, error) {
	payload, err := yaml.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, fileHeader{Magic: MagicNumber, Version: Version}); err != nil {
		return nil, err
	}
	buf.Write(enc.EncodeAll(payload, nil))
	return buf.Bytes(), nil
}

// Decode parses a serialized snapshot and validates it.
func Decode(data []byte) (*Snapshot, error) {
	r := bytes.NewReader(data)
	var h fileHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if h.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrMalformed, h.Magic)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, h.Version)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	payload, err := dec.DecodeAll(data[binary.Size(h):], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var snap Snapshot
	yd := yaml.NewDecoder(bytes.NewReader(payload))
	yd.KnownFields(true)
	if err := yd.Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := snap.validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Snapshot) validate() error {
	if s.Layers == nil {
		return fmt.Errorf("%w: no layer model", ErrMalformed)
	}
	if err := s.Layers.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if s.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrMalformed, s.Index)
	}
	return nil
}

// Save writes snap to path atomically.
func Save(path string, snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Load reads and decodes the snapshot at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
