package task

import (
	"crypto/ed25519"
	"errors"

	"golang.org/x/crypto/sha3"
)

var (
	ErrNotCompleted        = errors.New("task has no execution log attestation")
	ErrLogHashMismatch     = errors.New("execution log does not match recorded hash")
	ErrLogSignatureInvalid = errors.New("execution log signature does not verify against operator")
)

// Digest is the SHA3-256 hash used for execution logs and verification reports.
func Digest(data []byte) Hash {
	return Hash(sha3.Sum256(data))
}

// SignLog hashes an execution log and signs the digest with the operator key.
func SignLog(key ed25519.PrivateKey, log []byte) (Hash, Signature) {
	h := Digest(log)
	var sig Signature
	copy(sig[:], ed25519.Sign(key, h[:]))
	return h, sig
}

// VerifyLogAttestation checks a fetched execution log against a completed
// record: the digest must match and the signature must be the operator's.
func VerifyLogAttestation(r *Record, log []byte) error {
	if r.Status != StatusCompleted {
		return ErrNotCompleted
	}
	h := Digest(log)
	if h != r.LogHash {
		return ErrLogHashMismatch
	}
	if !ed25519.Verify(r.Operator.PublicKey(), h[:], r.Signature[:]) {
		return ErrLogSignatureInvalid
	}
	return nil
}
