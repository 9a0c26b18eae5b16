package audit

import (
	"encoding/binary"
	"encoding/json"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/margex/gotrade/internal/domain"
	"github.com/margex/gotrade/internal/metrics"
)

// BadgerSink persists audit entries in a Badger value log under
// monotonic sequence keys, so iteration order is append order.
type BadgerSink struct {
	db  *badger.DB
	seq *badger.Sequence
}

const seqBandwidth = 128

func OpenBadgerSink(dir string) (*BadgerSink, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open audit store")
	}
	seq, err := db.GetSequence([]byte("!audit-seq"), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "audit sequence")
	}
	return &BadgerSink{db: db, seq: seq}, nil
}

func seqKey(n uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, n)
	return key
}

func (s *BadgerSink) Append(entry domain.AuditEntry) error {
	n, err := s.seq.Next()
	if err != nil {
		return domain.ErrDatabase(errors.Wrap(err, "audit sequence next"))
	}
	val, err := json.Marshal(entry)
	if err != nil {
		return domain.ErrInternal("marshal audit entry", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(seqKey(n), val)
	})
	if err != nil {
		return domain.ErrDatabase(errors.Wrap(err, "append audit entry"))
	}
	metrics.AuditAppends.Add(1)
	return nil
}

// List walks entries in append order, filtering by user when userID is
// non-empty. Returns the page and the total match count.
func (s *BadgerSink) List(userID string, limit, offset int) ([]domain.AuditEntry, int, error) {
	var page []domain.AuditEntry
	total := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if len(item.Key()) != 8 {
				continue // sequence bookkeeping key
			}
			var entry domain.AuditEntry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			if userID != "" && entry.UserID != userID {
				continue
			}
			if total >= offset && (limit <= 0 || len(page) < limit) {
				page = append(page, entry)
			}
			total++
		}
		return nil
	})
	if err != nil {
		return nil, 0, domain.ErrDatabase(errors.Wrap(err, "list audit entries"))
	}
	return page, total, nil
}

func (s *BadgerSink) Close() error {
	if s.seq != nil {
		_ = s.seq.Release()
	}
	return s.db.Close()
}
