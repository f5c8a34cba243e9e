package task

import (
	"github.com/DF-AutoPilot/droneforce-contract/geo"
)

// Length limits of the variable fields, in bytes.
const (
	MaxDescriptionLen  = 256
	MaxLogReferenceLen = 64
)

// Record is the persisted attestation trail of one task. Field order is the
// on-ledger layout; see MarshalRecord.
type Record struct {
	Creator                Identity  `json:"creator"`
	Operator               Identity  `json:"operator"`
	Status                 Status    `json:"status"`
	LogReference           string    `json:"log_reference"`
	LogHash                Hash      `json:"log_hash"`
	Signature              Signature `json:"signature"`
	Timestamp              int64     `json:"timestamp"`
	Latitude               int64     `json:"latitude"`
	Longitude              int64     `json:"longitude"`
	AreaSize               uint32    `json:"area_size"`
	TaskType               TaskType  `json:"task_type"`
	Altitude               uint16    `json:"altitude"`
	GeofencingEnabled      bool      `json:"geofencing_enabled"`
	Description            string    `json:"description"`
	Bump                   uint8     `json:"bump"`
	Validator              Identity  `json:"validator"`
	VerificationResult     bool      `json:"verification_result"`
	VerificationReportHash Hash      `json:"verification_report_hash"`
}

// Location returns the task's fixed-point coordinates.
func (r *Record) Location() geo.Point {
	return geo.Point{Lat: r.Latitude, Lng: r.Longitude}
}

// Clone returns an independent copy.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// Check verifies the invariants every stored record must satisfy.
func (r *Record) Check() error {
	if !r.Status.Valid() {
		return ErrInvalidTaskStatus
	}
	if len(r.Description) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if len(r.LogReference) > MaxLogReferenceLen {
		return ErrArweaveTxIdTooLong
	}
	if err := r.Location().Validate(); err != nil {
		return fromGeo(err)
	}
	// An open task has no operator; a claimed one always does.
	if (r.Status == StatusCreated) != r.Operator.IsUnassigned() {
		return ErrInvalidTaskStatus
	}
	return nil
}
