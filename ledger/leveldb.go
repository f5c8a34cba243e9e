package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/near/borsh-go"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key prefixes.
const (
	accountPrefix byte = 'a'
	entryPrefix   byte = 'e'
	indexPrefix   byte = 'i'
	metaPrefix    byte = 'm'
)

var seqKey = []byte{metaPrefix, 's', 'e', 'q'}

// LevelDB persists the ledger in a goleveldb database. Each Exec runs in a
// leveldb transaction, which blocks other writers until it commits.
type LevelDB struct {
	mu sync.Mutex
	db *leveldb.DB
}

// NewLevelDB opens (or creates) the database directory at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		WriteBuffer: 4 * opt.MiB,
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// Close releases the database.
func (l *LevelDB) Close() error { return l.db.Close() }

func accountKey(addr Address) []byte {
	return append([]byte{accountPrefix}, addr[:]...)
}

func entryKey(seq uint64) []byte {
	k := make([]byte, 9)
	k[0] = entryPrefix
	binary.BigEndian.PutUint64(k[1:], seq)
	return k
}

func taskIndexPrefix(taskID string) []byte {
	k := make([]byte, 0, 2+len(taskID))
	k = append(k, indexPrefix, byte(len(taskID)))
	return append(k, taskID...)
}

func taskIndexKey(taskID string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(taskIndexPrefix(taskID), seq)
}

type levelTx struct {
	tr  *leveldb.Transaction
	seq uint64
}

// Exec runs fn inside a leveldb transaction, discarding it on error.
func (l *LevelDB) Exec(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	tr, err := l.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	seq, err := readSeq(tr.Get)
	if err != nil {
		tr.Discard()
		return err
	}
	tx := &levelTx{tr: tr, seq: seq}
	if err := fn(tx); err != nil {
		tr.Discard()
		return err
	}
	if tx.seq != seq {
		if err := tr.Put(seqKey, binary.BigEndian.AppendUint64(nil, tx.seq), nil); err != nil {
			tr.Discard()
			return fmt.Errorf("store seq: %w", err)
		}
	}
	if err := tr.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func readSeq(get func([]byte, *opt.ReadOptions) ([]byte, error)) (uint64, error) {
	v, err := get(seqKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read seq: %w", err)
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("read seq: %d bytes", len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

func (t *levelTx) Get(addr Address) ([]byte, error) {
	v, err := t.tr.Get(accountKey(addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", addr, err)
	}
	return clone(v), nil
}

func (t *levelTx) Allocate(addr Address, data []byte) error {
	ok, err := t.tr.Has(accountKey(addr), nil)
	if err != nil {
		return fmt.Errorf("check account %s: %w", addr, err)
	}
	if ok {
		return ErrAccountExists
	}
	return t.tr.Put(accountKey(addr), data, nil)
}

func (t *levelTx) Put(addr Address, data []byte) error {
	ok, err := t.tr.Has(accountKey(addr), nil)
	if err != nil {
		return fmt.Errorf("check account %s: %w", addr, err)
	}
	if !ok {
		return ErrAccountNotFound
	}
	return t.tr.Put(accountKey(addr), data, nil)
}

func (t *levelTx) Log(e *Entry) error {
	e.Seq = t.seq + 1
	v, err := borsh.Serialize(*e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := t.tr.Put(entryKey(e.Seq), v, nil); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	if err := t.tr.Put(taskIndexKey(e.TaskID, e.Seq), nil, nil); err != nil {
		return fmt.Errorf("index entry: %w", err)
	}
	t.seq = e.Seq
	return nil
}

// Account returns committed account data.
func (l *LevelDB) Account(_ context.Context, addr Address) ([]byte, error) {
	v, err := l.db.Get(accountKey(addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", addr, err)
	}
	return v, nil
}

// Entries returns committed log entries matching the filter. A TaskID filter
// walks the per-task index instead of the whole log.
func (l *LevelDB) Entries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	snap, err := l.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer snap.Release()

	var (
		rng    *util.Range
		seqAt  int
		byTask = filter.TaskID != ""
	)
	if byTask {
		prefix := taskIndexPrefix(filter.TaskID)
		rng = util.BytesPrefix(prefix)
		rng.Start = taskIndexKey(filter.TaskID, filter.AfterSeq+1)
		seqAt = len(prefix)
	} else {
		rng = &util.Range{Start: entryKey(filter.AfterSeq + 1), Limit: []byte{entryPrefix + 1}}
		seqAt = 1
	}

	it := snap.NewIterator(rng, nil)
	defer it.Release()

	var out []Entry
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		val := it.Value()
		if byTask {
			seq := binary.BigEndian.Uint64(it.Key()[seqAt:])
			if val, err = snap.Get(entryKey(seq), nil); err != nil {
				return nil, fmt.Errorf("load entry %d: %w", seq, err)
			}
		}
		var e Entry
		if err := borsh.Deserialize(&e, val); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		if !filter.Matches(&e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}
