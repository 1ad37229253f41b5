package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// MaxTranscripts is the history cap; the oldest entries are evicted first.
const MaxTranscripts = 500

var transcriptPrefix = []byte("transcript/")

type Transcript struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Raw       string    `json:"raw"`
	Mode      string    `json:"mode,omitempty"`
	App       string    `json:"app,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}

// Transcripts is the newest-first history of finished dictations.
type Transcripts struct {
	db    *badger.DB
	limit int
	now   func() time.Time

	mu   sync.Mutex
	last int64
}

func (d *DB) Transcripts() *Transcripts {
	return &Transcripts{db: d.db, limit: MaxTranscripts, now: time.Now}
}

// key orders entries by creation time; the id breaks ties.
func transcriptKey(nanos int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", transcriptPrefix, nanos, id))
}

// Append stores t, filling ID and CreatedAt when empty, and evicts the
// oldest entries beyond the cap.
func (s *Transcripts) Append(t Transcript) (Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	nanos := t.CreatedAt.UnixNano()
	if nanos <= s.last {
		nanos = s.last + 1
	}
	s.last = nanos

	raw, err := json.Marshal(t)
	if err != nil {
		return t, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(transcriptKey(nanos, t.ID), raw); err != nil {
			return err
		}
		return s.evict(txn)
	})
	if err != nil {
		return t, fmt.Errorf("append transcript: %w", err)
	}
	return t, nil
}

func (s *Transcripts) evict(txn *badger.Txn) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	it := txn.NewIterator(opts)

	var stale [][]byte
	n := 0
	for it.Seek(prefixEnd(transcriptPrefix)); it.ValidForPrefix(transcriptPrefix); it.Next() {
		n++
		if n > s.limit {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
	}
	it.Close()

	for _, k := range stale {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// prefixEnd is the smallest key after every key with prefix p, the seek
// target for a reverse scan.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	end[len(end)-1]++
	return end
}

// List returns up to limit transcripts, newest first. limit <= 0 means all.
func (s *Transcripts) List(limit int) ([]Transcript, error) {
	var out []Transcript
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefixEnd(transcriptPrefix)); it.ValidForPrefix(transcriptPrefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var t Transcript
			if err := json.Unmarshal(raw, &t); err != nil {
				return err
			}
			out = append(out, t)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Delete removes the transcript with the given id. Unknown ids are a no-op.
func (s *Transcripts) Delete(id string) error {
	suffix := "/" + id
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = transcriptPrefix
		it := txn.NewIterator(opts)
		var match []byte
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			if len(k) > len(suffix) && string(k[len(k)-len(suffix):]) == suffix {
				match = it.Item().KeyCopy(nil)
				break
			}
		}
		it.Close()
		if match == nil {
			return nil
		}
		return txn.Delete(match)
	})
}

// Clear removes every transcript.
func (s *Transcripts) Clear() error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = transcriptPrefix
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
