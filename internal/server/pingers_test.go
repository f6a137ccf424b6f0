package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingFunc(t *testing.T) {
	t.Parallel()

	ok := NewPinger("redis", func(context.Context) error { return nil })
	assert.Equal(t, "redis", ok.Name())
	require.NoError(t, ok.Ping(context.Background()))

	down := NewPinger("store", func(context.Context) error { return errors.New("connection refused") })
	err := down.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	assert.Error(t, (&PingFunc{Label: "empty"}).Ping(context.Background()))
}

func TestNewOptionalPinger(t *testing.T) {
	t.Parallel()

	assert.False(t, isOptional(NewPinger("store", nil)))
	assert.True(t, isOptional(NewOptionalPinger("redis", nil)))
}
