package membership

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/chinnucsk/dynomite/internal/partition"
	"github.com/chinnucsk/dynomite/internal/vclock"
)

// currentTag is the single-byte version tag prefixing the current
// persistence layout (§6, §9). It is a non-printable control byte so it
// can never be confused with the '{' that opens a legacy raw-JSON file.
const currentTag = byte(1)

// wireState is the JSON payload carried inside the tag-prefixed,
// length-prefixed, checksummed binary blob -- the framing is grounded on
// the teacher's SSTableWriter.Write (size + checksum around a JSON
// record), adapted from a per-entry data block to a whole-state snapshot.
type wireState struct {
	Version     []vclock.Entry         `json:"version"`
	Nodes       []string               `json:"nodes"`
	Q           uint64                 `json:"q"`
	RangeWidth  uint64                 `json:"range_width"`
	Assignments []partition.Assignment `json:"assignments"`
}

// legacyRecord is the older, unframed layout: a raw JSON object with five
// fields, predating both the binary framing and the O(1) owner index.
// "c" and "_" carry no analog in the current State and are discarded on
// upgrade (§4.3, §9).
type legacyRecord struct {
	C               json.RawMessage     `json:"c"`
	PartitionsByOwn map[string][]uint64 `json:"partitions"`
	Version         []vclock.Entry      `json:"version"`
	Nodes           []string            `json:"nodes"`
	Extra           json.RawMessage     `json:"_"`
}

func path(dir, nodeName string) string {
	return filepath.Join(dir, nodeName+".bin")
}

// EncodeState renders s as the wireState JSON payload carried inside the
// Gossiper's Exchange RPC (§4.4) -- the same encoding Save frames and checksums for disk, minus the framing,
// since gRPC already guarantees message integrity in flight.
func EncodeState(s State) ([]byte, error) {
	return json.Marshal(wireState{
		Version:     s.Version.Entries(),
		Nodes:       s.Nodes,
		Q:           s.Partitions.Q,
		RangeWidth:  s.Partitions.RangeWidth,
		Assignments: s.Partitions.Assignments,
	})
}

// DecodeState reconstructs a State from a Gossiper Exchange RPC payload,
// setting Self to self since the wire format never carries it (§3).
func DecodeState(payload []byte, self string) (State, error) {
	var w wireState
	if err := json.Unmarshal(payload, &w); err != nil {
		return State{}, fmt.Errorf("decode gossip state payload: %w", err)
	}
	return State{
		Version:    vclock.FromEntries(w.Version),
		Nodes:      w.Nodes,
		Partitions: partition.FromAssignments(w.Q, w.RangeWidth, w.Assignments),
		Self:       self,
	}, nil
}

// Save persists s to <dir>/<s.Self>.bin using write-then-rename for
// atomicity (§5, §9). self is never part of the encoded payload.
func Save(dir string, s State) error {
	payload, err := json.Marshal(wireState{
		Version:     s.Version.Entries(),
		Nodes:       s.Nodes,
		Q:           s.Partitions.Q,
		RangeWidth:  s.Partitions.RangeWidth,
		Assignments: s.Partitions.Assignments,
	})
	if err != nil {
		return fmt.Errorf("encode membership state: %w", err)
	}

	buf := new(bytes.Buffer)
	buf.WriteByte(currentTag)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(payload))); err != nil {
		return err
	}
	buf.Write(payload)
	checksum := crc32.ChecksumIEEE(payload)
	if err := binary.Write(buf, binary.LittleEndian, checksum); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create membership directory: %w", err)
	}

	dest := path(dir, s.Self)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write membership state: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("rename membership state into place: %w", err)
	}
	return nil
}

// Load reads <dir>/<nodeName>.bin and reconstructs a State with self set
// to self. It accepts both the current tag-1 layout and the legacy
// unframed 5-field record, upgrading the latter in place by re-Save-ing
// once decoded successfully.
func Load(dir, nodeName, self string) (State, error) {
	data, err := os.ReadFile(path(dir, nodeName))
	if err != nil {
		return State{}, err
	}

	isCurrent := len(data) > 0 && data[0] == currentTag

	var s State
	if isCurrent {
		s, err = decodeCurrent(data[1:], self)
	} else {
		s, err = decodeLegacy(data, self)
	}
	if err != nil {
		return State{}, err
	}

	if !isCurrent {
		if err := Save(dir, s); err != nil {
			return State{}, fmt.Errorf("upgrade legacy membership state: %w", err)
		}
	}
	return s, nil
}

func decodeCurrent(body []byte, self string) (State, error) {
	if len(body) < 8 {
		return State{}, fmt.Errorf("membership state blob too short")
	}
	length := binary.LittleEndian.Uint32(body[:4])
	if uint32(len(body)) < 4+length+4 {
		return State{}, fmt.Errorf("membership state blob truncated")
	}
	payload := body[4 : 4+length]
	wantChecksum := binary.LittleEndian.Uint32(body[4+length : 4+length+4])
	if got := crc32.ChecksumIEEE(payload); got != wantChecksum {
		return State{}, fmt.Errorf("membership state checksum mismatch: got %x want %x", got, wantChecksum)
	}

	return DecodeState(payload, self)
}

func decodeLegacy(data []byte, self string) (State, error) {
	var rec legacyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return State{}, fmt.Errorf("decode legacy membership state: %w", err)
	}

	var assignments []partition.Assignment
	for owner, ids := range rec.PartitionsByOwn {
		for _, id := range ids {
			assignments = append(assignments, partition.Assignment{Owner: owner, ID: partition.ID(id)})
		}
	}
	q := uint64(len(assignments))

	return State{
		Version:    vclock.FromEntries(rec.Version),
		Nodes:      rec.Nodes,
		Partitions: partition.FromAssignments(q, partition.RangeWidthForQ(q), assignments),
		Self:       self,
	}, nil
}
