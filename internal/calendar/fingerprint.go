package calendar

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// FingerprintVersion changes whenever the field list below changes.
const FingerprintVersion = 1

// Fingerprint summarizes the display-relevant fields of a task. Equal
// fingerprints mean a merge has nothing to show.
type Fingerprint [blake2b.Size256]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

type fingerprintField struct {
	name  string
	value func(t *Task) string
}

// fingerprintFields lists, in order, every field that participates in change
// detection.
var fingerprintFields = []fingerprintField{
	{"id", func(t *Task) string { return t.ID }},
	{"name", func(t *Task) string { return t.Name }},
	{"note", func(t *Task) string { return optString(t.Note) }},
	{"due_date", func(t *Task) string { return optTime(t.DueDate) }},
	{"start_at", func(t *Task) string { return optTime(t.StartAt) }},
	{"end_at", func(t *Task) string { return optTime(t.EndAt) }},
	{"parent_id", func(t *Task) string { return optString(t.ParentID) }},
	{"deleted", func(t *Task) string {
		if t.DeletedAt != nil {
			return "1"
		}
		return "0"
	}},
	{"project_name", func(t *Task) string { return t.ProjectName }},
	{"status", func(t *Task) string { return optLookup(t.Status) }},
	{"priority", func(t *Task) string { return optLookup(t.Priority) }},
	{"assignees", func(t *Task) string { return strings.Join(sortedSet(t.AssigneeIDs), ",") }},
}

// FingerprintFields returns the names of the participating fields.
func FingerprintFields() []string {
	names := make([]string, len(fingerprintFields))
	for i, f := range fingerprintFields {
		names[i] = f.name
	}
	return names
}

// FingerprintOf hashes the task's display fields. Each value is length
// prefixed so that adjacent fields cannot run into each other.
func FingerprintOf(t Task) Fingerprint {
	h, _ := blake2b.New256(nil)

	var buf [binary.MaxVarintLen64]byte
	write := func(s string) {
		n := binary.PutUvarint(buf[:], uint64(len(s)))
		h.Write(buf[:n])
		h.Write([]byte(s))
	}

	n := binary.PutUvarint(buf[:], FingerprintVersion)
	h.Write(buf[:n])
	for _, f := range fingerprintFields {
		write(f.name)
		write(f.value(&t))
	}

	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out
}

func optString(s *string) string {
	if s == nil {
		return "\x00"
	}
	return *s
}

func optTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func optLookup(l *Lookup) string {
	if l == nil {
		return ""
	}
	return l.Name + "\x00" + l.Color
}
