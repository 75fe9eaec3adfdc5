package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMaintainer struct {
	err   error
	calls int
}

func (f *fakeMaintainer) RunSQLMaintenance(context.Context) error {
	f.calls++
	return f.err
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()

	store := &fakeMaintainer{}
	rollovers := 0
	deps := TaskDeps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  store,
		Rollover: func(ctx context.Context) error {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			rollovers++
			return nil
		},
	}

	tasks := RegisterAllTasks(deps)
	require.Len(t, tasks, 2)

	require.NoError(t, tasks["daily_rollover"](context.Background()))
	assert.Equal(t, 1, rollovers)

	require.NoError(t, tasks["sql_maintenance"](context.Background()))
	assert.Equal(t, 1, store.calls)

	store.err = errors.New("disk full")
	assert.ErrorIs(t, tasks["sql_maintenance"](context.Background()), store.err)
}

func TestDailyRolloverError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	task := newDailyRolloverTask(TaskDeps{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Rollover: func(context.Context) error { return boom },
	})
	assert.ErrorIs(t, task(context.Background()), boom)
}
