package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"neurogut/internal/model"
)

const (
	sessionPrefix = "session/"
	reportPrefix  = "report/"
)

type badgerStore struct {
	db *badger.DB
}

// NewBadger opens an embedded store at dir.
func NewBadger(dir string) (Store, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "neurogut-badger"
	}
	opts := badger.DefaultOptions(dir).
		WithCompression(options.ZSTD).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	slog.Info("badger store opened", slog.String("path", dir))
	return &badgerStore{db: db}, nil
}

func (b *badgerStore) Init(context.Context) error {
	return nil
}

func (b *badgerStore) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	return nil
}

// sessionKey sorts a device's sessions chronologically:
// session/<device>/<big-endian unix ms>/<session id>.
func sessionKey(sa model.SessionAnalytics) []byte {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(max(0, sa.CreatedAt.UnixMilli())))
	key := make([]byte, 0, len(sessionPrefix)+len(sa.DeviceID)+len(sa.SessionID)+10)
	key = append(key, sessionPrefix...)
	key = append(key, sa.DeviceID...)
	key = append(key, '/')
	key = append(key, ts[:]...)
	key = append(key, '/')
	key = append(key, sa.SessionID...)
	return key
}

func (b *badgerStore) SaveSession(_ context.Context, sa model.SessionAnalytics) error {
	body, err := json.Marshal(sa)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(sa), body)
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (b *badgerStore) ListSessions(_ context.Context, deviceID string, limit int) ([]model.SessionAnalytics, error) {
	prefix := []byte(sessionPrefix)
	if deviceID != "" {
		prefix = append(prefix, deviceID...)
		prefix = append(prefix, '/')
	}
	out := make([]model.SessionAnalytics, 0)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var sa model.SessionAnalytics
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sa)
			})
			if err != nil {
				return fmt.Errorf("decode session %q: %w", it.Item().Key(), err)
			}
			out = append(out, sa)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *badgerStore) SaveReport(_ context.Context, report model.DebugReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(max(0, report.CreatedAt.UnixNano())))
	key := bytes.Join([][]byte{[]byte(reportPrefix + report.RecordingID), seq[:]}, []byte{'/'})
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	if err := wb.Set(key, body); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// Reports returns every stored report for a recording, oldest first.
func (b *badgerStore) Reports(recordingID string) ([]model.DebugReport, error) {
	var out []model.DebugReport
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(reportPrefix + recordingID + "/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var r model.DebugReport
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &r) }); err != nil {
				return fmt.Errorf("decode report: %w", err)
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}
