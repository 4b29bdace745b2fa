package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/cuemby/scrun/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketAttempts = []byte("attempts")
	bucketRunSizes = []byte("run_sizes")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store under dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "scrun.db")

	// Several invocations may share a prefix; wait briefly for the lock
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketAttempts, bucketRunSizes} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// attemptKey is "<invocation>/<number>" with the number zero padded so
// keys sort by attempt order within a job's sub-bucket
func attemptKey(a *types.RunAttempt) []byte {
	return []byte(fmt.Sprintf("%s/%06d", a.InvocationID, a.Number))
}

// SaveAttempt inserts or replaces an attempt record
func (s *BoltStore) SaveAttempt(attempt *types.RunAttempt) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		job, err := tx.Bucket(bucketAttempts).CreateBucketIfNotExists([]byte(attempt.JobID))
		if err != nil {
			return err
		}
		data, err := json.Marshal(attempt)
		if err != nil {
			return err
		}
		return job.Put(attemptKey(attempt), data)
	})
}

// ListAttempts returns a job's attempts ordered by start time
func (s *BoltStore) ListAttempts(jobID string) ([]*types.RunAttempt, error) {
	var attempts []*types.RunAttempt
	err := s.db.View(func(tx *bolt.Tx) error {
		job := tx.Bucket(bucketAttempts).Bucket([]byte(jobID))
		if job == nil {
			return nil
		}
		return job.ForEach(func(k, v []byte) error {
			var a types.RunAttempt
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			attempts = append(attempts, &a)
			return nil
		})
	})
	sort.SliceStable(attempts, func(i, j int) bool {
		return attempts[i].StartedAt.Before(attempts[j].StartedAt)
	})
	return attempts, err
}

// SetRunSize records the node count of the job's latest launch
func (s *BoltStore) SetRunSize(jobID string, nodes int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRunSizes).Put([]byte(jobID), []byte(strconv.Itoa(nodes)))
	})
}

// RunSize returns the recorded node count, or 0 when none was recorded
func (s *BoltStore) RunSize(jobID string) (int, error) {
	var size int
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRunSizes).Get([]byte(jobID))
		if data == nil {
			return nil
		}
		n, err := strconv.Atoi(string(data))
		if err != nil {
			return fmt.Errorf("corrupt run size for job %s: %w", jobID, err)
		}
		size = n
		return nil
	})
	return size, err
}
