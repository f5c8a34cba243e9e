// Package txn defines signed instructions: the only way a caller reaches the
// task state machine. A transaction names one operation, its arguments and a
// single signer whose ed25519 signature covers the canonical message bytes.
package txn

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/near/borsh-go"
	"golang.org/x/crypto/sha3"

	"github.com/DF-AutoPilot/droneforce-contract/ledger"
	"github.com/DF-AutoPilot/droneforce-contract/task"
)

var (
	ErrMalformed    = errors.New("malformed instruction")
	ErrBadSignature = errors.New("signature verification failed")
)

// Op selects the state machine operation.
type Op uint8

const (
	OpCreate Op = iota
	OpAccept
	OpComplete
	OpRecordVerification
)

var opNames = [...]string{"create", "accept", "complete", "record_verification"}

func (o Op) Valid() bool { return int(o) < len(opNames) }

func (o Op) String() string {
	if !o.Valid() {
		return fmt.Sprintf("op(%d)", uint8(o))
	}
	return opNames[o]
}

// ParseOp is the inverse of Op.String.
func ParseOp(s string) (Op, error) {
	for i, n := range opNames {
		if n == s {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown op %q", ErrMalformed, s)
}

func (o Op) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: unknown op %d", ErrMalformed, uint8(o))
	}
	return []byte(o.String()), nil
}

func (o *Op) UnmarshalText(b []byte) error {
	v, err := ParseOp(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Instruction is one unsigned operation request. Exactly the argument block
// belonging to Op is set.
type Instruction struct {
	Op           Op                     `json:"op"`
	TaskID       string                 `json:"task_id"`
	Create       *task.CreateArgs       `json:"create,omitempty"`
	Complete     *task.CompleteArgs     `json:"complete,omitempty"`
	Verification *task.VerificationArgs `json:"verification,omitempty"`
}

func NewCreate(taskID string, args task.CreateArgs) Instruction {
	return Instruction{Op: OpCreate, TaskID: taskID, Create: &args}
}

func NewAccept(taskID string) Instruction {
	return Instruction{Op: OpAccept, TaskID: taskID}
}

func NewComplete(taskID string, args task.CompleteArgs) Instruction {
	return Instruction{Op: OpComplete, TaskID: taskID, Complete: &args}
}

func NewRecordVerification(taskID string, args task.VerificationArgs) Instruction {
	return Instruction{Op: OpRecordVerification, TaskID: taskID, Verification: &args}
}

// Validate checks the task id length and that the arguments match the op.
func (ins Instruction) Validate() error {
	if len(ins.TaskID) == 0 || len(ins.TaskID) > ledger.MaxSeedLen {
		return fmt.Errorf("%w: task id must be 1-%d bytes, got %d", ErrMalformed, ledger.MaxSeedLen, len(ins.TaskID))
	}
	want := [3]bool{ins.Op == OpCreate, ins.Op == OpComplete, ins.Op == OpRecordVerification}
	got := [3]bool{ins.Create != nil, ins.Complete != nil, ins.Verification != nil}
	switch ins.Op {
	case OpCreate, OpAccept, OpComplete, OpRecordVerification:
		if want != got {
			return fmt.Errorf("%w: arguments do not match op %s", ErrMalformed, ins.Op)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown op %d", ErrMalformed, uint8(ins.Op))
	}
}

type createBody struct {
	TaskID string
	Args   task.CreateArgs
}

type acceptBody struct {
	TaskID string
}

type completeBody struct {
	TaskID string
	Args   task.CompleteArgs
}

type verificationBody struct {
	TaskID string
	Args   task.VerificationArgs
}

// Message returns the canonical bytes a signer signs: the program id, the op
// byte, then the borsh encoding of the task id and arguments.
func (ins Instruction) Message() ([]byte, error) {
	if err := ins.Validate(); err != nil {
		return nil, err
	}
	var body any
	switch ins.Op {
	case OpCreate:
		body = createBody{TaskID: ins.TaskID, Args: *ins.Create}
	case OpAccept:
		body = acceptBody{TaskID: ins.TaskID}
	case OpComplete:
		body = completeBody{TaskID: ins.TaskID, Args: *ins.Complete}
	case OpRecordVerification:
		body = verificationBody{TaskID: ins.TaskID, Args: *ins.Verification}
	}
	b, err := borsh.Serialize(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ins.Op, err)
	}
	msg := make([]byte, 0, len(ledger.ProgramID)+1+len(b))
	msg = append(msg, ledger.ProgramID[:]...)
	msg = append(msg, byte(ins.Op))
	return append(msg, b...), nil
}

// Transaction is a signed instruction.
type Transaction struct {
	Instruction Instruction    `json:"instruction"`
	Signer      task.Identity  `json:"signer"`
	Signature   task.Signature `json:"signature"`
}

// Sign builds a transaction signed by key.
func Sign(ins Instruction, key ed25519.PrivateKey) (*Transaction, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key is %d bytes, want %d", len(key), ed25519.PrivateKeySize)
	}
	msg, err := ins.Message()
	if err != nil {
		return nil, err
	}
	signer, err := task.IdentityFromPublicKey(key.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	tx := &Transaction{Instruction: ins, Signer: signer}
	copy(tx.Signature[:], ed25519.Sign(key, msg))
	return tx, nil
}

// Verify checks the instruction shape and the signature. The unassigned
// identity can never sign.
func (tx *Transaction) Verify() error {
	msg, err := tx.Instruction.Message()
	if err != nil {
		return err
	}
	if tx.Signer.IsUnassigned() {
		return fmt.Errorf("%w: unassigned signer", ErrBadSignature)
	}
	if !ed25519.Verify(tx.Signer.PublicKey(), msg, tx.Signature[:]) {
		return ErrBadSignature
	}
	return nil
}

// ID is the SHA3-256 digest of the message and signature.
func (tx *Transaction) ID() (task.Hash, error) {
	msg, err := tx.Instruction.Message()
	if err != nil {
		return task.Hash{}, err
	}
	h := sha3.New256()
	h.Write(msg)             //nolint:errcheck
	h.Write(tx.Signature[:]) //nolint:errcheck
	var id task.Hash
	copy(id[:], h.Sum(nil))
	return id, nil
}
