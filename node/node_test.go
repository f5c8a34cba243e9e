package node

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/DF-AutoPilot/droneforce-contract/bus"
	"github.com/DF-AutoPilot/droneforce-contract/ledger"
	"github.com/DF-AutoPilot/droneforce-contract/task"
	"github.com/DF-AutoPilot/droneforce-contract/txn"
)

type signer struct {
	key ed25519.PrivateKey
	id  task.Identity
}

func newSigner(b byte) signer {
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{b}, ed25519.SeedSize))
	id, err := task.IdentityFromPublicKey(key.Public().(ed25519.PublicKey))
	if err != nil {
		panic(err)
	}
	return signer{key: key, id: id}
}

var (
	creator   = newSigner(1)
	operatorX = newSigner(2)
	operatorY = newSigner(3)
	validator = newSigner(4)
)

func (s signer) sign(t *testing.T, ins txn.Instruction) *txn.Transaction {
	t.Helper()
	tx, err := txn.Sign(ins, s.key)
	require.NoError(t, err)
	return tx
}

func createArgs() task.CreateArgs {
	return task.CreateArgs{
		Latitude:          37.7749,
		Longitude:         -122.4194,
		AreaSize:          1500,
		TaskType:          task.TypeInspection,
		Altitude:          120,
		GeofencingEnabled: true,
		Description:       "Inspect the north span of the bridge",
		Validator:         validator.id,
	}
}

type fixture struct {
	node    *Node
	ledger  ledger.Ledger
	bus     *bus.InMemoryBus
	metrics *Metrics
	clock   *clock
}

type clock struct {
	mu  sync.Mutex
	now int64
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += 100
	return time.Unix(c.now, 0)
}

func newFixture(t *testing.T, l ledger.Ledger) *fixture {
	t.Helper()
	f := &fixture{
		ledger:  l,
		bus:     bus.NewInMemoryBus(0),
		metrics: NewMetrics(prometheus.NewRegistry()),
		clock:   &clock{},
	}
	f.node = New(l,
		WithClock(f.clock.Now),
		WithBus(f.bus),
		WithMetrics(f.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return f
}

func forEachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	t.Helper()
	dir := t.TempDir()
	open := map[string]func() (ledger.Ledger, error){
		ledger.DriverMemory:  func() (ledger.Ledger, error) { return ledger.NewMemory(), nil },
		ledger.DriverSQLite:  func() (ledger.Ledger, error) { return ledger.NewSQLite(filepath.Join(dir, "node.db")) },
		ledger.DriverLevelDB: func() (ledger.Ledger, error) { return ledger.NewLevelDB(filepath.Join(dir, "node.ldb")) },
	}
	for name, o := range open {
		t.Run(name, func(t *testing.T) {
			l, err := o()
			require.NoError(t, err)
			t.Cleanup(func() { l.Close() })
			fn(t, newFixture(t, l))
		})
	}
}

func (f *fixture) submit(t *testing.T, s signer, ins txn.Instruction) (*Receipt, error) {
	t.Helper()
	return f.node.Submit(context.Background(), s.sign(t, ins))
}

func (f *fixture) record(t *testing.T, id string) *task.Record {
	t.Helper()
	v, err := f.node.Task(context.Background(), id)
	require.NoError(t, err)
	return v.Record
}

func (f *fixture) entryCount(t *testing.T) int {
	t.Helper()
	es, err := f.ledger.Entries(context.Background(), ledger.EntryFilter{})
	require.NoError(t, err)
	return len(es)
}

func TestNode_Lifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		require := require.New(t)

		// A: create.
		rcpt, err := f.submit(t, creator, txn.NewCreate("T1", createArgs()))
		require.NoError(err)
		require.Equal(task.StatusCreated, rcpt.Status)
		require.Equal(uint64(1), rcpt.Seq)
		require.Equal(task.TaskCreated{TaskID: "T1", Creator: creator.id, Timestamp: 100}, rcpt.Event)
		addr, err := TaskAddress("T1")
		require.NoError(err)
		require.Equal(addr, rcpt.Address)

		rec := f.record(t, "T1")
		require.Equal(task.StatusCreated, rec.Status)
		require.True(rec.Operator.IsUnassigned())
		lat, lng := rec.Location().Degrees()
		require.InDelta(37.7749, lat, 2e-7)
		require.InDelta(-122.4194, lng, 2e-7)

		// B: accept, then a second accept by anyone fails.
		rcpt, err = f.submit(t, operatorX, txn.NewAccept("T1"))
		require.NoError(err)
		require.Equal(task.StatusAccepted, rcpt.Status)
		require.Equal(operatorX.id, f.record(t, "T1").Operator)

		_, err = f.submit(t, operatorY, txn.NewAccept("T1"))
		require.ErrorIs(err, task.ErrInvalidTaskStatus)
		_, err = f.submit(t, operatorX, txn.NewAccept("T1"))
		require.ErrorIs(err, task.ErrInvalidTaskStatus)

		// C: complete by a stranger fails, by the operator succeeds.
		logData := []byte(`{"waypoints":[[37.7749,-122.4194]]}`)
		h, sig := task.SignLog(operatorX.key, logData)
		args := task.CompleteArgs{LogReference: "ar-tx-abc", LogHash: h, Signature: sig}
		_, err = f.submit(t, operatorY, txn.NewComplete("T1", args))
		require.ErrorIs(err, task.ErrUnauthorizedOperator)

		rcpt, err = f.submit(t, operatorX, txn.NewComplete("T1", args))
		require.NoError(err)
		require.Equal(task.StatusCompleted, rcpt.Status)
		rec = f.record(t, "T1")
		require.Equal("ar-tx-abc", rec.LogReference)
		require.NoError(task.VerifyLogAttestation(rec, logData))

		// D: verification succeeds once; a later false is refused.
		report := task.Digest([]byte("report"))
		rcpt, err = f.submit(t, validator, txn.NewRecordVerification("T1", task.VerificationArgs{Result: true, ReportHash: report}))
		require.NoError(err)
		require.Equal(task.TaskVerified{TaskID: "T1", Validator: validator.id, VerificationResult: true, Timestamp: rcpt.Timestamp}, rcpt.Event)

		_, err = f.submit(t, validator, txn.NewRecordVerification("T1", task.VerificationArgs{Result: false}))
		require.ErrorIs(err, task.ErrAlreadyVerified)
		rec = f.record(t, "T1")
		require.True(rec.VerificationResult)
		require.Equal(report, rec.VerificationReportHash)

		events, err := f.node.Events(context.Background(), ledger.EntryFilter{TaskID: "T1"})
		require.NoError(err)
		var kinds []string
		for _, e := range events {
			kinds = append(kinds, e.Kind)
		}
		require.Equal([]string{"TaskCreated", "TaskAccepted", "TaskCompleted", "TaskVerified"}, kinds)
	})
}

func TestNode_RejectionsLeaveNoTrace(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		require := require.New(t)
		_, err := f.submit(t, creator, txn.NewCreate("T1", createArgs()))
		require.NoError(err)
		before := f.record(t, "T1")

		bad := createArgs()
		bad.Latitude = 91
		_, err = f.submit(t, creator, txn.NewCreate("T2", bad))
		require.ErrorIs(err, task.ErrInvalidLatitude)
		_, err = f.node.Task(context.Background(), "T2")
		require.ErrorIs(err, ErrTaskNotFound)

		_, err = f.submit(t, creator, txn.NewCreate("T1", createArgs()))
		require.ErrorIs(err, ErrTaskExists)
		require.ErrorIs(err, ledger.ErrAccountExists)

		_, err = f.submit(t, operatorX, txn.NewComplete("T1", task.CompleteArgs{LogReference: "x"}))
		require.ErrorIs(err, task.ErrInvalidTaskStatus)

		_, err = f.submit(t, operatorY, txn.NewRecordVerification("T1", task.VerificationArgs{Result: true}))
		require.ErrorIs(err, task.ErrUnauthorizedValidator)

		_, err = f.submit(t, operatorX, txn.NewAccept("missing"))
		require.ErrorIs(err, ErrTaskNotFound)

		require.Equal(before, f.record(t, "T1"))
		require.Equal(1, f.entryCount(t))
	})
}

func TestNode_VerificationBeforeCompletion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		require := require.New(t)
		_, err := f.submit(t, creator, txn.NewCreate("T1", createArgs()))
		require.NoError(err)

		// A false verdict keeps the verification open.
		_, err = f.submit(t, validator, txn.NewRecordVerification("T1", task.VerificationArgs{Result: false}))
		require.NoError(err)
		rcpt, err := f.submit(t, validator, txn.NewRecordVerification("T1", task.VerificationArgs{Result: true}))
		require.NoError(err)
		require.Equal(task.StatusCreated, rcpt.Status)

		rec := f.record(t, "T1")
		require.True(rec.VerificationResult)
		require.Equal(task.StatusCreated, rec.Status)
	})
}

func TestNode_BadSignature(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, ledger.NewMemory())

	tx := creator.sign(t, txn.NewCreate("T1", createArgs()))
	tx.Signer = operatorX.id
	_, err := f.node.Submit(context.Background(), tx)
	require.ErrorIs(err, txn.ErrBadSignature)
	require.Equal(0, f.entryCount(t))

	require.Equal(1.0, testutil.ToFloat64(f.metrics.submissions.WithLabelValues("create", "bad_signature")))
}

func TestNode_Tasks(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		require := require.New(t)
		ctx := context.Background()
		for _, id := range []string{"T1", "T2", "T3"} {
			_, err := f.submit(t, creator, txn.NewCreate(id, createArgs()))
			require.NoError(err)
		}
		_, err := f.submit(t, operatorX, txn.NewAccept("T2"))
		require.NoError(err)

		all, err := f.node.Tasks(ctx, Filter{})
		require.NoError(err)
		require.Len(all, 3)
		require.Equal("T1", all[0].ID)

		accepted := task.StatusAccepted
		got, err := f.node.Tasks(ctx, Filter{Status: &accepted})
		require.NoError(err)
		require.Len(got, 1)
		require.Equal("T2", got[0].ID)

		got, err = f.node.Tasks(ctx, Filter{Operator: &operatorX.id})
		require.NoError(err)
		require.Len(got, 1)

		open := task.Unassigned
		got, err = f.node.Tasks(ctx, Filter{Operator: &open})
		require.NoError(err)
		require.Len(got, 2)
		require.Equal("T1", got[0].ID)
		require.Equal("T3", got[1].ID)

		got, err = f.node.Tasks(ctx, Filter{Creator: &creator.id, Limit: 2})
		require.NoError(err)
		require.Len(got, 2)

		got, err = f.node.Tasks(ctx, Filter{Validator: &operatorY.id})
		require.NoError(err)
		require.Empty(got)
	})
}

func TestNode_PublishesAfterCommit(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, ledger.NewMemory())
	ctx := context.Background()

	var got []*bus.Message
	f.bus.Subscribe("T1", func(_ context.Context, m *bus.Message) error {
		// The entry is already readable when subscribers run.
		es, err := f.ledger.Entries(ctx, ledger.EntryFilter{AfterSeq: m.Seq - 1, Limit: 1})
		require.NoError(err)
		require.Len(es, 1)
		require.Equal(m.ID, es[0].ID)
		got = append(got, m)
		return nil
	})

	_, err := f.submit(t, creator, txn.NewCreate("T1", createArgs()))
	require.NoError(err)
	_, err = f.submit(t, operatorY, txn.NewComplete("T1", task.CompleteArgs{}))
	require.Error(err)
	_, err = f.submit(t, operatorX, txn.NewAccept("T1"))
	require.NoError(err)

	require.Len(got, 2)
	require.Equal("TaskCreated", got[0].Kind)
	require.Equal(task.TaskAccepted{Operator: operatorX.id, Timestamp: got[1].Timestamp}, got[1].Event)
}

func TestNode_PublishesInSequenceOrder(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, ledger.NewMemory())

	var (
		mu   sync.Mutex
		seqs []uint64
	)
	f.bus.Subscribe(bus.All, func(_ context.Context, m *bus.Message) error {
		mu.Lock()
		seqs = append(seqs, m.Seq)
		mu.Unlock()
		return nil
	})

	const n = 32
	txs := make([]*txn.Transaction, n)
	for i := range txs {
		txs[i] = creator.sign(t, txn.NewCreate(fmt.Sprintf("T%d", i), createArgs()))
	}
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, tx := range txs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.node.Submit(context.Background(), tx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(err)
	}

	require.Len(seqs, n)
	for i := 1; i < len(seqs); i++ {
		require.Greater(seqs[i], seqs[i-1], "delivery order %v", seqs)
	}
	hist, err := f.bus.History(bus.All, 0)
	require.NoError(err)
	require.Len(hist, n)
	for i, m := range hist {
		require.Equal(seqs[i], m.Seq)
	}
}

func TestNode_Metrics(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, ledger.NewMemory())

	_, err := f.submit(t, creator, txn.NewCreate("T1", createArgs()))
	require.NoError(err)
	_, err = f.submit(t, creator, txn.NewCreate("T2", createArgs()))
	require.NoError(err)
	_, err = f.submit(t, operatorX, txn.NewAccept("T1"))
	require.NoError(err)
	_, err = f.submit(t, operatorY, txn.NewAccept("T1"))
	require.Error(err)

	require.Equal(1.0, testutil.ToFloat64(f.metrics.tasks.WithLabelValues("created")))
	require.Equal(1.0, testutil.ToFloat64(f.metrics.tasks.WithLabelValues("accepted")))
	require.Equal(2.0, testutil.ToFloat64(f.metrics.submissions.WithLabelValues("create", "ok")))
	require.Equal(1.0, testutil.ToFloat64(f.metrics.submissions.WithLabelValues("accept", "InvalidTaskStatus")))

	// A fresh node over the same ledger recounts from storage.
	m := NewMetrics(prometheus.NewRegistry())
	n := New(f.ledger, WithMetrics(m))
	require.NoError(n.RefreshMetrics(context.Background()))
	require.Equal(1.0, testutil.ToFloat64(m.tasks.WithLabelValues("created")))
	require.Equal(1.0, testutil.ToFloat64(m.tasks.WithLabelValues("accepted")))
	require.Equal(0.0, testutil.ToFloat64(m.tasks.WithLabelValues("completed")))
}

func TestTaskAddress(t *testing.T) {
	require := require.New(t)
	a, err := TaskAddress("T1")
	require.NoError(err)
	b, err := TaskAddress("T2")
	require.NoError(err)
	require.NotEqual(a, b)

	_, err = TaskAddress("")
	require.ErrorIs(err, txn.ErrMalformed)
	_, err = TaskAddress(string(make([]byte, 33)))
	require.ErrorIs(err, txn.ErrMalformed)
}
