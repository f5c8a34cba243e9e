package task

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpace(t *testing.T) {
	require.Equal(t, 595, Space())
}

func TestDiscriminatorsMatchAnchor(t *testing.T) {
	// First 8 bytes of sha256("<namespace>:<Name>").
	for _, tc := range []struct {
		got  [8]byte
		want string
	}{
		{recordDiscriminator, "eb200a17513caacb"},
		{discriminator("event", "TaskCreated"), "31ae0607479f45af"},
		{discriminator("event", "TaskVerified"), "08835f76262a846a"},
	} {
		require.Equal(t, tc.want, hex.EncodeToString(tc.got[:]))
	}

	data, err := MarshalEvent(TaskCreated{TaskID: "T1", Creator: creator, Timestamp: 1})
	require.NoError(t, err)
	require.Equal(t, "31ae0607479f45af", hex.EncodeToString(data[:8]))
}

func TestMarshalRecord_Layout(t *testing.T) {
	require := require.New(t)
	rec := completedT1(t)
	rec.Description = strings.Repeat("x", MaxDescriptionLen)
	rec.LogReference = strings.Repeat("y", MaxLogReferenceLen)

	data, err := MarshalRecord(rec)
	require.NoError(err)
	require.Len(data, Space(), "a record with full-length strings fills its reservation")
	require.Equal(recordDiscriminator[:], data[:8])
	require.Equal(creator[:], data[8:40])
	require.Equal(operatorX[:], data[40:72])
	require.Equal(byte(StatusCompleted), data[72])
	// log reference length prefix, little endian u32
	require.Equal([]byte{64, 0, 0, 0}, data[73:77])

	got, err := UnmarshalRecord(data)
	require.NoError(err)
	require.Equal(rec, got)
}

func TestMarshalRecord_RefusesInvalid(t *testing.T) {
	rec := createdT1(t)
	rec.Description = strings.Repeat("x", MaxDescriptionLen+1)
	_, err := MarshalRecord(rec)
	require.ErrorIs(t, err, ErrDescriptionTooLong)
}

func TestUnmarshalRecord_RejectsUnknownStatus(t *testing.T) {
	require := require.New(t)
	data, err := MarshalRecord(createdT1(t))
	require.NoError(err)

	data[72] = 3
	_, err = UnmarshalRecord(data)
	require.ErrorIs(err, ErrCorruptRecord)
	require.ErrorIs(err, ErrInvalidTaskStatus)
}

func TestUnmarshalRecord_RejectsForeignAccount(t *testing.T) {
	require := require.New(t)
	data, err := MarshalRecord(createdT1(t))
	require.NoError(err)

	data[0] ^= 0xff
	_, err = UnmarshalRecord(data)
	require.ErrorIs(err, ErrCorruptRecord)

	_, err = UnmarshalRecord([]byte{1, 2})
	require.ErrorIs(err, ErrCorruptRecord)
}

func TestUnmarshalRecord_RejectsOperatorMismatch(t *testing.T) {
	require := require.New(t)
	data, err := MarshalRecord(createdT1(t))
	require.NoError(err)

	// Status accepted while the operator is still the sentinel.
	data[72] = byte(StatusAccepted)
	_, err = UnmarshalRecord(data)
	require.ErrorIs(err, ErrCorruptRecord)
}

func TestRecordJSON(t *testing.T) {
	require := require.New(t)
	rec := createdT1(t)

	b, err := json.Marshal(rec)
	require.NoError(err)
	require.Contains(string(b), `"status":"created"`)
	require.Contains(string(b), `"operator":"11111111111111111111111111111111"`)

	var got Record
	require.NoError(json.Unmarshal(b, &got))
	require.Equal(*rec, got)
}

func TestEventRoundTrip(t *testing.T) {
	require := require.New(t)
	events := []Event{
		TaskCreated{TaskID: "T1", Creator: creator, Timestamp: 1},
		TaskAccepted{Operator: operatorX, Timestamp: 2},
		TaskCompleted{Operator: operatorX, LogReference: "ar-tx-abc", Timestamp: 3},
		TaskVerified{TaskID: "T1", Validator: validator, VerificationResult: true, Timestamp: 4},
	}
	seen := map[string]bool{}
	for _, ev := range events {
		data, err := MarshalEvent(ev)
		require.NoError(err)
		require.False(seen[string(data[:8])], "discriminators must differ")
		seen[string(data[:8])] = true

		got, err := UnmarshalEvent(data)
		require.NoError(err)
		require.Equal(ev, got)
		require.True(IsEventName(ev.EventName()))
	}

	_, err := UnmarshalEvent([]byte("garbage!"))
	require.ErrorIs(err, ErrUnknownEvent)
	require.False(IsEventName("TaskDeleted"))
}

func TestVerifyLogAttestation(t *testing.T) {
	require := require.New(t)
	keyX, _ := testKey(2)
	log := []byte(`{"waypoints":[[37.7749,-122.4194]]}`)

	rec := createdT1(t)
	require.ErrorIs(VerifyLogAttestation(rec, log), ErrNotCompleted)

	_, err := Accept(env(operatorX, 200), rec)
	require.NoError(err)
	h, sig := SignLog(keyX, log)
	require.True(ed25519.Verify(operatorX.PublicKey(), h[:], sig[:]))
	_, err = Complete(env(operatorX, 300), rec, CompleteArgs{LogReference: "ar-tx-abc", LogHash: h, Signature: sig})
	require.NoError(err)

	require.NoError(VerifyLogAttestation(rec, log))
	require.ErrorIs(VerifyLogAttestation(rec, []byte("tampered")), ErrLogHashMismatch)

	keyY, _ := testKey(3)
	_, forged := SignLog(keyY, log)
	rec.Signature = forged
	require.ErrorIs(VerifyLogAttestation(rec, log), ErrLogSignatureInvalid)
}

func TestIdentityText(t *testing.T) {
	require := require.New(t)

	require.Equal("11111111111111111111111111111111", Unassigned.String())
	id, err := ParseIdentity(creator.String())
	require.NoError(err)
	require.Equal(creator, id)

	_, err = ParseIdentity("1111")
	require.Error(err)
	_, err = ParseIdentity("0OIl")
	require.Error(err)

	h := Digest([]byte("x"))
	hp, err := ParseHash(h.String())
	require.NoError(err)
	require.Equal(h, hp)

	var sig Signature
	sig[63] = 1
	sp, err := ParseSignature(sig.String())
	require.NoError(err)
	require.Equal(sig, sp)
}

func TestParseStatusAndType(t *testing.T) {
	require := require.New(t)

	for _, s := range []Status{StatusCreated, StatusAccepted, StatusCompleted} {
		got, err := ParseStatus(s.String())
		require.NoError(err)
		require.Equal(s, got)
	}
	_, err := ParseStatus("cancelled")
	require.Error(err)
	_, err = Status(7).MarshalText()
	require.Error(err)

	tt, err := ParseTaskType("Mapping")
	require.NoError(err)
	require.Equal(TypeMapping, tt)
	tt, err = ParseTaskType("42")
	require.NoError(err)
	require.Equal("type(42)", tt.String())
	_, err = ParseTaskType("300")
	require.Error(err)
}
