package txn

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DF-AutoPilot/droneforce-contract/task"
)

func key(b byte) ed25519.PrivateKey {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	return ed25519.NewKeyFromSeed(seed)
}

func createIns() Instruction {
	return NewCreate("T1", task.CreateArgs{
		Latitude:    37.7749,
		Longitude:   -122.4194,
		AreaSize:    500,
		TaskType:    task.TypeSurveillance,
		Altitude:    120,
		Description: "survey",
	})
}

func TestSignAndVerify(t *testing.T) {
	require := require.New(t)
	for _, ins := range []Instruction{
		createIns(),
		NewAccept("T1"),
		NewComplete("T1", task.CompleteArgs{LogReference: "ar-tx-abc"}),
		NewRecordVerification("T1", task.VerificationArgs{Result: true}),
	} {
		tx, err := Sign(ins, key(1))
		require.NoError(err)
		require.NoError(tx.Verify(), ins.Op.String())
		require.Equal(key(1).Public(), ed25519.PublicKey(tx.Signer[:]))
	}
}

func TestVerify_Tampered(t *testing.T) {
	require := require.New(t)

	tx, err := Sign(createIns(), key(1))
	require.NoError(err)
	tx.Instruction.Create.Description = "something else"
	require.ErrorIs(tx.Verify(), ErrBadSignature)

	tx, err = Sign(NewAccept("T1"), key(1))
	require.NoError(err)
	tx.Instruction.TaskID = "T2"
	require.ErrorIs(tx.Verify(), ErrBadSignature)

	tx, err = Sign(NewAccept("T1"), key(1))
	require.NoError(err)
	tx.Signer, _ = task.IdentityFromPublicKey(key(2).Public().(ed25519.PublicKey))
	require.ErrorIs(tx.Verify(), ErrBadSignature)
}

func TestVerify_UnassignedSigner(t *testing.T) {
	tx := &Transaction{Instruction: NewAccept("T1")}
	require.ErrorIs(t, tx.Verify(), ErrBadSignature)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		ins  Instruction
		ok   bool
	}{
		{"create", createIns(), true},
		{"accept", NewAccept("T1"), true},
		{"max task id", NewAccept(strings.Repeat("t", 32)), true},
		{"empty task id", NewAccept(""), false},
		{"long task id", NewAccept(strings.Repeat("t", 33)), false},
		{"create without args", Instruction{Op: OpCreate, TaskID: "T1"}, false},
		{"accept with args", Instruction{Op: OpAccept, TaskID: "T1", Complete: &task.CompleteArgs{}}, false},
		{"complete with verify args", Instruction{Op: OpComplete, TaskID: "T1", Verification: &task.VerificationArgs{}}, false},
		{"unknown op", Instruction{Op: Op(9), TaskID: "T1"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ins.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrMalformed)
			_, err = Sign(tc.ins, key(1))
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestMessage_BindsOp(t *testing.T) {
	require := require.New(t)
	a, err := NewAccept("T1").Message()
	require.NoError(err)
	c, err := NewComplete("T1", task.CompleteArgs{}).Message()
	require.NoError(err)
	require.NotEqual(a, c)
	require.Equal(byte(OpAccept), a[32])
}

func TestTransactionJSON(t *testing.T) {
	require := require.New(t)
	tx, err := Sign(createIns(), key(1))
	require.NoError(err)

	b, err := json.Marshal(tx)
	require.NoError(err)
	require.Contains(string(b), `"op":"create"`)

	var got Transaction
	require.NoError(json.Unmarshal(b, &got))
	require.NoError(got.Verify())

	id1, err := tx.ID()
	require.NoError(err)
	id2, err := got.ID()
	require.NoError(err)
	require.Equal(id1, id2)

	require.Error(json.Unmarshal([]byte(`{"instruction":{"op":"delete"}}`), &got))
}

func TestKeypairFile(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "keys", "id.json")

	k, err := GenerateKeypair()
	require.NoError(err)
	require.NoError(SaveKeypair(path, k))

	info, err := os.Stat(path)
	require.NoError(err)
	require.Equal(os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadKeypair(path)
	require.NoError(err)
	require.Equal(k, got)

	// Corrupt the public half.
	data, err := os.ReadFile(path)
	require.NoError(err)
	var ints []int
	require.NoError(json.Unmarshal(data, &ints))
	ints[63] ^= 1
	data, _ = json.Marshal(ints)
	require.NoError(os.WriteFile(path, data, 0o600))
	_, err = LoadKeypair(path)
	require.Error(err)
}
