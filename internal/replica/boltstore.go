package replica

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucket = []byte("replicas")

// BoltStore saves replica states in a bbolt file, one key per board.
type BoltStore struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open replica db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Save(board string, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(board), data)
	})
}

// Load returns the saved state for board; ok is false if none was saved.
func (s *BoltStore) Load(board string) (st State, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(board))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &st)
	})
	return st, ok, err
}

func (s *BoltStore) Boards() ([]string, error) {
	var boards []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, _ []byte) error {
			boards = append(boards, string(k))
			return nil
		})
	})
	return boards, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
