// SPDX-License-Identifier: GPL-2.0-or-later

package log

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := NewLogger()
	logger.Start(ctx)
	return logger
}

func TestLevelString(t *testing.T) {
	require.Equal(t, "ERROR", LevelError.String())
	require.Equal(t, "WARNING", LevelWarning.String())
	require.Equal(t, "INFO", LevelInfo.String())
	require.Equal(t, "DEBUG", LevelDebug.String())
	require.Equal(t, "UNKNOWN", Level(0).String())
}

func TestLogger(t *testing.T) {
	t.Run("msg", func(t *testing.T) {
		logger := newTestLogger(t)

		feed, cancel := logger.Subscribe()
		defer cancel()

		go logger.Error().
			Src("stitch").
			Job("job1").
			Time(time.Unix(0, 2000)).
			Msg("test")

		actual := <-feed
		require.Equal(t, Log{
			Level: LevelError,
			Time:  2,
			Msg:   "test",
			Src:   "stitch",
			Job:   "job1",
		}, actual)
	})
	t.Run("msgf", func(t *testing.T) {
		logger := newTestLogger(t)

		feed, cancel := logger.Subscribe()
		defer cancel()

		go logger.Info().Msgf("%v inputs", 4)

		actual := <-feed
		require.Equal(t, "4 inputs", actual.Msg)
		require.Equal(t, LevelInfo, actual.Level)
	})
	t.Run("levels", func(t *testing.T) {
		logger := newTestLogger(t)

		feed, cancel := logger.Subscribe()
		defer cancel()

		go func() {
			logger.Error().Msg("")
			logger.Warn().Msg("")
			logger.Info().Msg("")
			logger.Debug().Msg("")
		}()

		require.Equal(t, LevelError, (<-feed).Level)
		require.Equal(t, LevelWarning, (<-feed).Level)
		require.Equal(t, LevelInfo, (<-feed).Level)
		require.Equal(t, LevelDebug, (<-feed).Level)
	})
	t.Run("unsubBeforeMsg", func(t *testing.T) {
		logger := newTestLogger(t)

		feed1, cancel1 := logger.Subscribe()
		feed2, cancel2 := logger.Subscribe()
		cancel2()

		go logger.Info().Msg("test")
		actual1 := <-feed1
		actual2 := <-feed2
		cancel1()

		require.Equal(t, "test", actual1.Msg)
		require.Equal(t, Log{}, actual2)
	})
	t.Run("unsubAfterMsg", func(t *testing.T) {
		logger := newTestLogger(t)

		feed, cancel := logger.Subscribe()

		go logger.Info().Msg("test")
		go logger.Info().Msg("test")
		go logger.Info().Msg("test")
		time.Sleep(10 * time.Microsecond)
		cancel()

		require.Equal(t, Log{}, <-feed)
	})
}
