package task

import (
	"github.com/DF-AutoPilot/droneforce-contract/geo"
)

// CreateArgs are the creator-supplied parameters of a new task.
type CreateArgs struct {
	Latitude          float64  `json:"latitude"`
	Longitude         float64  `json:"longitude"`
	AreaSize          uint32   `json:"area_size"`
	TaskType          TaskType `json:"task_type"`
	Altitude          uint16   `json:"altitude"`
	GeofencingEnabled bool     `json:"geofencing_enabled"`
	Description       string   `json:"description"`
	Validator         Identity `json:"validator"`
}

// CompleteArgs attach the execution log attestation.
type CompleteArgs struct {
	LogReference string    `json:"log_reference"`
	LogHash      Hash      `json:"log_hash"`
	Signature    Signature `json:"signature"`
}

// VerificationArgs carry the validator's outcome.
type VerificationArgs struct {
	Result     bool `json:"result"`
	ReportHash Hash `json:"report_hash"`
}

// defaultBump is the address bump recorded on every new record. Derived
// addresses on this ledger never need a search, so it is constant.
const defaultBump = 255

// Create builds a new record owned by the signer. Nothing is returned on error.
func Create(env Env, args CreateArgs) (*Record, Event, error) {
	if len(args.Description) > MaxDescriptionLen {
		return nil, nil, ErrDescriptionTooLong
	}
	loc, err := geo.FromDegrees(args.Latitude, args.Longitude)
	if err != nil {
		return nil, nil, fromGeo(err)
	}

	rec := &Record{
		Creator:           env.Signer,
		Operator:          Unassigned,
		Status:            StatusCreated,
		Timestamp:         env.Now,
		Latitude:          loc.Lat,
		Longitude:         loc.Lng,
		AreaSize:          args.AreaSize,
		TaskType:          args.TaskType,
		Altitude:          args.Altitude,
		GeofencingEnabled: args.GeofencingEnabled,
		Description:       args.Description,
		Bump:              defaultBump,
		Validator:         args.Validator,
	}
	return rec, TaskCreated{TaskID: env.TaskID, Creator: env.Signer, Timestamp: env.Now}, nil
}

// Accept claims an open task for the signer.
func Accept(env Env, rec *Record) (Event, error) {
	if err := check(env, rec, AcceptGuards); err != nil {
		return nil, err
	}
	next, _ := rec.Status.Next()
	rec.Operator = env.Signer
	rec.Status = next
	rec.Timestamp = env.Now
	return TaskAccepted{Operator: env.Signer, Timestamp: env.Now}, nil
}

// Complete records the operator's execution log attestation.
func Complete(env Env, rec *Record, args CompleteArgs) (Event, error) {
	if err := check(env, rec, CompleteGuards); err != nil {
		return nil, err
	}
	if len(args.LogReference) > MaxLogReferenceLen {
		return nil, ErrArweaveTxIdTooLong
	}
	next, _ := rec.Status.Next()
	rec.LogReference = args.LogReference
	rec.LogHash = args.LogHash
	rec.Signature = args.Signature
	rec.Status = next
	rec.Timestamp = env.Now
	return TaskCompleted{Operator: env.Signer, LogReference: args.LogReference, Timestamp: env.Now}, nil
}

// RecordVerification stores the validator's outcome. The guards do not look
// at the task status, so an outcome may be recorded before completion.
func RecordVerification(env Env, rec *Record, args VerificationArgs) (Event, error) {
	if err := check(env, rec, VerificationGuards); err != nil {
		return nil, err
	}
	rec.VerificationResult = args.Result
	rec.VerificationReportHash = args.ReportHash
	rec.Timestamp = env.Now
	return TaskVerified{
		TaskID:             env.TaskID,
		Validator:          env.Signer,
		VerificationResult: args.Result,
		Timestamp:          env.Now,
	}, nil
}
