// SPDX-License-Identifier: GPL-2.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const jobBucket = "jobs"

// ErrJobNotExist job does not exist.
var ErrJobNotExist = errors.New("job does not exist")

// Job is one finished concatenation.
type Job struct {
	ID        string        `json:"id"`
	Inputs    []string      `json:"inputs"`
	Size      int64         `json:"size"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"createdAt"`
}

// NewJobStore new job index.
func NewJobStore(dbPath string, wg *sync.WaitGroup) *JobStore {
	return &JobStore{
		dbPath: dbPath,
		wg:     wg,
	}
}

// JobStore persistent index of saved outputs.
type JobStore struct {
	dbPath string

	db *bolt.DB
	wg *sync.WaitGroup
}

// Init initialize database.
func (store *JobStore) Init(ctx context.Context) error {
	dbOpts := &bolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bolt.Open(store.dbPath, 0o600, dbOpts)
	if err != nil {
		return fmt.Errorf("could not open database: %w: %v", err, store.dbPath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(jobBucket))
		return err
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("could not create bucket: %w", err)
	}

	store.db = db

	store.wg.Add(1)
	go func() {
		<-ctx.Done()
		db.Close()
		store.wg.Done()
	}()

	return nil
}

// Keys sort by creation time so a cursor walk returns jobs oldest
// first. The job id breaks ties.
func jobKey(job Job) []byte {
	return []byte(fmt.Sprintf("%020d-%s", job.CreatedAt.UnixNano(), job.ID))
}

// Save stores one job.
func (store *JobStore) Save(job Job) error {
	value, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	return store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(jobBucket)).Put(jobKey(job), value)
	})
}

// Get returns a job by id.
func (store *JobStore) Get(id string) (Job, error) {
	var job Job
	err := store.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(jobBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("unmarshal job: %w", err)
			}
			if job.ID == id {
				return nil
			}
		}
		return ErrJobNotExist
	})
	if err != nil {
		return Job{}, err
	}
	return job, nil
}

// List returns all jobs, oldest first.
func (store *JobStore) List() ([]Job, error) {
	var jobs []Job
	err := store.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(jobBucket)).ForEach(func(_, v []byte) error {
			var job Job
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("unmarshal job: %w", err)
			}
			jobs = append(jobs, job)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Oldest returns the oldest job.
func (store *JobStore) Oldest() (Job, error) {
	var job Job
	err := store.db.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket([]byte(jobBucket)).Cursor().First()
		if k == nil {
			return ErrJobNotExist
		}
		return json.Unmarshal(v, &job)
	})
	if err != nil {
		return Job{}, err
	}
	return job, nil
}

// Delete removes a job from the index.
func (store *JobStore) Delete(id string) error {
	return store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(jobBucket))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var job Job
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("unmarshal job: %w", err)
			}
			if job.ID == id {
				return b.Delete(k)
			}
		}
		return ErrJobNotExist
	})
}
