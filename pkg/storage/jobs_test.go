// SPDX-License-Identifier: GPL-2.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestJobStore(t *testing.T) *JobStore {
	t.Helper()
	store := NewJobStore(filepath.Join(t.TempDir(), "jobs.db"), &sync.WaitGroup{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, store.Init(ctx))

	return store
}

func TestJobStore(t *testing.T) {
	job1 := Job{
		ID:        "job1",
		Inputs:    []string{"a.mp4", "b.mp4"},
		Size:      100,
		Duration:  12 * time.Second,
		CreatedAt: time.Unix(1, 0).UTC(),
	}
	job2 := Job{
		ID:        "job2",
		Inputs:    []string{"c.mp4"},
		Size:      50,
		Duration:  3 * time.Second,
		CreatedAt: time.Unix(2, 0).UTC(),
	}

	t.Run("saveAndGet", func(t *testing.T) {
		store := newTestJobStore(t)
		require.NoError(t, store.Save(job1))

		saved, err := store.Get("job1")
		require.NoError(t, err)
		require.Equal(t, job1, saved)
	})
	t.Run("getNotExist", func(t *testing.T) {
		store := newTestJobStore(t)
		_, err := store.Get("x")
		require.ErrorIs(t, err, ErrJobNotExist)
	})
	t.Run("listOldestFirst", func(t *testing.T) {
		store := newTestJobStore(t)
		require.NoError(t, store.Save(job2))
		require.NoError(t, store.Save(job1))

		jobs, err := store.List()
		require.NoError(t, err)
		require.Equal(t, []Job{job1, job2}, jobs)
	})
	t.Run("oldest", func(t *testing.T) {
		store := newTestJobStore(t)
		require.NoError(t, store.Save(job2))
		require.NoError(t, store.Save(job1))

		oldest, err := store.Oldest()
		require.NoError(t, err)
		require.Equal(t, job1, oldest)
	})
	t.Run("oldestEmpty", func(t *testing.T) {
		store := newTestJobStore(t)
		_, err := store.Oldest()
		require.ErrorIs(t, err, ErrJobNotExist)
	})
	t.Run("delete", func(t *testing.T) {
		store := newTestJobStore(t)
		require.NoError(t, store.Save(job1))
		require.NoError(t, store.Delete("job1"))

		_, err := store.Get("job1")
		require.ErrorIs(t, err, ErrJobNotExist)
	})
	t.Run("deleteNotExist", func(t *testing.T) {
		store := newTestJobStore(t)
		require.ErrorIs(t, store.Delete("x"), ErrJobNotExist)
	})
	t.Run("openDBerr", func(t *testing.T) {
		store := NewJobStore("/dev/null", &sync.WaitGroup{})
		require.Error(t, store.Init(context.Background()))
	})
}
