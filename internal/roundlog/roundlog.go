// Package roundlog persists each mining round's outcome to a local
// bbolt database for operator diagnostics and fast restart reporting.
// It is a historical journal only: no in-flight round state is kept
// here, so restarting never resurrects mining state (spec.md
// Non-goals, "persistent state between restarts").
package roundlog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/djkazic/dodmine/internal/bitwork"
)

var (
	roundsBucket = []byte("rounds")
	metaBucket   = []byte("meta")
	tipKey       = []byte("tip_height")
)

// Outcome is one recorded round.
type Outcome struct {
	Height     uint64         `json:"height"`
	ParentHash [32]byte       `json:"parent_hash"`
	Difficulty bitwork.Bitwork `json:"difficulty"`
	Won        bool           `json:"won"`
	Expired    bool           `json:"expired"`
	Accepted   bool           `json:"accepted"`
	Note       string         `json:"note,omitempty"`
}

// Store is a bbolt-backed append-only journal of round outcomes.
type Store struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// Open creates or opens the journal at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("roundlog: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(roundsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("roundlog: init buckets: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add records a round outcome, overwriting any prior entry at the same
// height, and advances the recorded tip if this height is newer.
func (s *Store) Add(o Outcome) error {
	encoded, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("roundlog: encode outcome: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		rounds := tx.Bucket(roundsBucket)
		if err := rounds.Put(heightKey(o.Height), encoded); err != nil {
			return err
		}

		meta := tx.Bucket(metaBucket)
		current := meta.Get(tipKey)
		if current == nil || o.Height > binary.BigEndian.Uint64(current) {
			if err := meta.Put(tipKey, heightKey(o.Height)); err != nil {
				return err
			}
		}
		s.logger.Debug("round outcome recorded",
			zap.Uint64("height", o.Height),
			zap.Bool("won", o.Won),
			zap.Bool("expired", o.Expired),
		)
		return nil
	})
}

// Get looks up the outcome recorded for height, if any.
func (s *Store) Get(height uint64) (Outcome, bool, error) {
	var out Outcome
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(roundsBucket).Get(heightKey(height))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &out)
	})
	return out, found, err
}

// Tip returns the highest height recorded, if any.
func (s *Store) Tip() (uint64, bool, error) {
	var height uint64
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(metaBucket).Get(tipKey)
		if raw == nil {
			return nil
		}
		found = true
		height = binary.BigEndian.Uint64(raw)
		return nil
	})
	return height, found, err
}

// Count returns the number of recorded rounds.
func (s *Store) Count() int {
	n := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(roundsBucket).Stats().KeyN
		return nil
	})
	return n
}

func heightKey(height uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, height)
	return key
}
