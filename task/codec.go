package task

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/near/borsh-go"
)

// ErrCorruptRecord wraps every decoding failure of stored account data.
var ErrCorruptRecord = errors.New("corrupt task record")

var recordDiscriminator = discriminator("account", "TaskAccount")

// Space is the largest encoded size of a record, discriminator included.
func Space() int {
	return 8 + // discriminator
		32 + // creator
		32 + // operator
		1 + // status
		4 + MaxLogReferenceLen +
		32 + // log hash
		64 + // signature
		8 + // timestamp
		8 + // latitude
		8 + // longitude
		4 + // area size
		1 + // task type
		2 + // altitude
		1 + // geofencing
		4 + MaxDescriptionLen +
		1 + // bump
		32 + // validator
		1 + // verification result
		32 // verification report hash
}

// MarshalRecord encodes r as account data. Records breaking an invariant are
// refused so they never reach storage.
func MarshalRecord(r *Record) ([]byte, error) {
	if err := r.Check(); err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	body, err := borsh.Serialize(*r)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return append(recordDiscriminator[:], body...), nil
}

// UnmarshalRecord decodes account data written by MarshalRecord, rejecting
// foreign accounts, unknown status tags and out-of-range fields.
func UnmarshalRecord(data []byte) (*Record, error) {
	if len(data) < len(recordDiscriminator) || !bytes.Equal(data[:8], recordDiscriminator[:]) {
		return nil, fmt.Errorf("%w: bad discriminator", ErrCorruptRecord)
	}
	if len(data) > Space() {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrCorruptRecord, len(data), Space())
	}
	var r Record
	if err := borsh.Deserialize(&r, data[8:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if err := r.Check(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	return &r, nil
}
