package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func healthy(name string) Dependency {
	return Dependency{Name: name, Ping: func(context.Context) error { return nil }}
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: quietLogger()})
	assert.Error(t, err, "no consumers")

	_, err = NewService(ServiceParams{
		Logger:    quietLogger(),
		Consumers: []Consumer{{Name: "notifications"}},
	})
	assert.Error(t, err, "consumer without run func")

	_, err = NewService(ServiceParams{
		Logger:       quietLogger(),
		Dependencies: []Dependency{{Name: "redis"}},
		Consumers:    []Consumer{{Name: "notifications", Run: blockUntilDone}},
	})
	assert.Error(t, err, "dependency without ping")
}

func TestRunFailsWhenDependencyDown(t *testing.T) {
	started := false
	svc, err := NewService(ServiceParams{
		Logger: quietLogger(),
		Dependencies: []Dependency{
			healthy("redis"),
			{Name: "database", Ping: func(context.Context) error { return errors.New("db down") }},
		},
		Consumers: []Consumer{{Name: "notifications", Run: func(context.Context) error {
			started = true
			return nil
		}}},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database ping failed")
	assert.False(t, started)
}

func TestConsumerFailureStopsTheOthers(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc, err := NewService(ServiceParams{
		Logger:       quietLogger(),
		Dependencies: []Dependency{healthy("pubsub")},
		Consumers: []Consumer{
			{Name: "notifications", Run: func(context.Context) error { return boom }},
			{Name: "idle", Run: blockUntilDone},
		},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "notifications")
}

func TestRunStopsOnCancel(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger:    quietLogger(),
		Consumers: []Consumer{{Name: "notifications", Run: blockUntilDone}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.Run(ctx), context.Canceled)
}
