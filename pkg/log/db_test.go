// SPDX-License-Identifier: GPL-2.0-or-later

package log

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	logDB := NewDB(filepath.Join(tempDir, "logs.db"), &sync.WaitGroup{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, logDB.Init(ctx))

	return logDB
}

func TestQuery(t *testing.T) {
	msg1 := Log{
		Level: LevelError,
		Time:  4000,
		Src:   "s1",
		Job:   "j1",
		Msg:   "msg1",
	}
	msg2 := Log{
		Level: LevelWarning,
		Time:  3000,
		Src:   "s1",
		Msg:   "msg2",
	}
	msg3 := Log{
		Level: LevelInfo,
		Time:  2000,
		Src:   "s2",
		Job:   "j2",
		Msg:   "msg3",
	}

	logDB := newTestDB(t)

	require.NoError(t, logDB.saveLog(msg1))
	require.NoError(t, logDB.saveLog(msg2))
	require.NoError(t, logDB.saveLog(msg3))

	cases := []struct {
		name     string
		input    Query
		expected []Log
	}{
		{
			name: "singleLevel",
			input: Query{
				Levels:  []Level{LevelWarning},
				Sources: []string{"s1"},
			},
			expected: []Log{msg2},
		},
		{
			name: "multipleLevels",
			input: Query{
				Levels:  []Level{LevelError, LevelWarning},
				Sources: []string{"s1"},
			},
			expected: []Log{msg1, msg2},
		},
		{
			name: "multipleSources",
			input: Query{
				Levels:  []Level{LevelError, LevelInfo},
				Sources: []string{"s1", "s2"},
			},
			expected: []Log{msg1, msg3},
		},
		{
			name: "singleJob",
			input: Query{
				Levels:  []Level{LevelError, LevelInfo},
				Sources: []string{"s1", "s2"},
				Jobs:    []string{"j1"},
			},
			expected: []Log{msg1},
		},
		{
			name: "multipleJobs",
			input: Query{
				Levels:  []Level{LevelError, LevelInfo},
				Sources: []string{"s1", "s2"},
				Jobs:    []string{"j1", "j2"},
			},
			expected: []Log{msg1, msg3},
		},
		{
			name: "all",
			input: Query{
				Levels:  []Level{LevelError, LevelWarning, LevelInfo, LevelDebug},
				Sources: []string{"s1", "s2"},
			},
			expected: []Log{msg1, msg2, msg3},
		},
		{
			name: "limit",
			input: Query{
				Levels:  []Level{LevelError, LevelWarning, LevelInfo, LevelDebug},
				Sources: []string{"s1", "s2"},
				Limit:   2,
			},
			expected: []Log{msg1, msg2},
		},
		{
			name:     "noFilters",
			input:    Query{Limit: 2},
			expected: []Log{msg1, msg2},
		},
		{
			name: "time",
			input: Query{
				Levels:  []Level{LevelError, LevelWarning, LevelInfo, LevelDebug},
				Sources: []string{"s1", "s2"},
				Time:    3500,
			},
			expected: []Log{msg2, msg3},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			logs, err := logDB.Query(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expected, *logs)
		})
	}

	t.Run("empty", func(t *testing.T) {
		logDB := newTestDB(t)

		logs, err := logDB.Query(Query{Limit: 50})
		require.NoError(t, err)
		require.Empty(t, *logs)
	})
	t.Run("unmarshalErr", func(t *testing.T) {
		logDB := newTestDB(t)

		err := logDB.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket([]byte(dbAPIversion))
			return b.Put([]byte("invalid"), []byte("nil"))
		})
		require.NoError(t, err)

		_, err = logDB.Query(Query{})
		require.Error(t, err)
	})
}

func TestDB(t *testing.T) {
	t.Run("maxKeys", func(t *testing.T) {
		logDB := newTestDB(t)
		logDB.maxKeys = 3

		require.NoError(t, logDB.saveLog(Log{Time: 1}))
		require.NoError(t, logDB.saveLog(Log{Time: 2}))
		require.NoError(t, logDB.saveLog(Log{Time: 3}))
		require.NoError(t, logDB.saveLog(Log{Time: 4}))
		require.NoError(t, logDB.saveLog(Log{Time: 5}))

		logDB.db.View(func(tx *bolt.Tx) error {
			keyN := tx.Bucket([]byte(dbAPIversion)).Stats().KeyN
			require.Equal(t, 3, keyN)
			return nil
		})
	})
	t.Run("openDBerr", func(t *testing.T) {
		logDB := &DB{
			dbPath: "/dev/null",
			wg:     &sync.WaitGroup{},
			saveWG: &sync.WaitGroup{},
		}
		err := logDB.Init(context.Background())
		require.Error(t, err)
	})
}
