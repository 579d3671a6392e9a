package ctl

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"clinicflow/internal/queue/repository"
	"clinicflow/pkg/config"
	"clinicflow/pkg/logger"
	"clinicflow/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo       *repository.MemorySequenceRepository
	migrated   string
	openedWith string
	closed     bool
}

func (f *fixture) open(ctx context.Context, driver string) (*Env, error) {
	f.openedWith = driver
	storeDriver := driver
	if storeDriver == "" {
		storeDriver = config.StoreMongo
	}
	return &Env{
		Config:    &config.Config{StoreDriver: storeDriver, Location: time.UTC, Log: logger.Discard()},
		Sequences: f.repo,
		Migrate: func(ctx context.Context) error {
			f.migrated = storeDriver
			return nil
		},
		Close: func() { f.closed = true },
	}, nil
}

func run(t *testing.T, f *fixture, args ...string) (string, error) {
	t.Helper()
	root := NewRoot(f.open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		want   string
		hasErr bool
	}{
		{name: "configured driver", args: []string{"migrate"}, want: config.StoreMongo},
		{name: "explicit postgres", args: []string{"migrate", "postgres"}, want: config.StorePostgres},
		{name: "unknown driver", args: []string{"migrate", "redis"}, hasErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fixture{repo: repository.NewMemorySequenceRepository()}
			out, err := run(t, f, tt.args...)
			if tt.hasErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.migrated)
			assert.Contains(t, out, "Migration completed")
			assert.True(t, f.closed)
		})
	}
}

func TestMigrate_StoreWithoutSchema(t *testing.T) {
	f := &fixture{repo: repository.NewMemorySequenceRepository()}
	root := NewRoot(func(ctx context.Context, driver string) (*Env, error) {
		env, _ := f.open(ctx, driver)
		env.Config.StoreDriver = config.StoreMemory
		env.Migrate = nil
		return env, nil
	})
	root.SetArgs([]string{"migrate"})
	root.SetOut(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestCountersShow(t *testing.T) {
	ctx := context.Background()
	f := &fixture{repo: repository.NewMemorySequenceRepository()}

	out, err := run(t, f, "counters", "show", "--date", "2025-04-30")
	require.NoError(t, err)
	assert.Contains(t, out, "next number is Q20250430-001")

	key := model.SequenceKey("2025-04-30")
	for i := 0; i < 2; i++ {
		_, err := f.repo.Next(ctx, key, time.Now())
		require.NoError(t, err)
	}

	out, err = run(t, f, "counters", "show", "--date", "2025-04-30")
	require.NoError(t, err)
	assert.Contains(t, out, key)
	assert.Contains(t, out, "2")
	assert.Contains(t, out, "free")

	_, err = run(t, f, "counters", "show", "--date", "30/04/2025")
	assert.Error(t, err)
}

func TestCountersReclaim(t *testing.T) {
	ctx := context.Background()
	f := &fixture{repo: repository.NewMemorySequenceRepository()}

	stale := time.Now().UTC().Add(-time.Hour)
	ok, err := f.repo.Acquire(ctx, model.SequenceKey("2025-04-30"), "crashed-holder", stale, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	out, err := run(t, f, "counters", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "expired")

	out, err = run(t, f, "counters", "reclaim")
	require.NoError(t, err)
	assert.Contains(t, out, "Reclaimed 1 expired lock(s).")

	c, err := f.repo.Get(ctx, model.SequenceKey("2025-04-30"))
	require.NoError(t, err)
	assert.False(t, c.Locked)
}

func TestOpenFailure(t *testing.T) {
	root := NewRoot(func(ctx context.Context, driver string) (*Env, error) {
		return nil, errors.New("connection refused")
	})
	root.SetArgs([]string{"counters", "reclaim"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
