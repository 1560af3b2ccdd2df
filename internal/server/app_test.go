package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/clipkeeper/internal/logging"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror/objectstore"
	"github.com/dmitrijs2005/clipkeeper/internal/server/auth"
	"github.com/dmitrijs2005/clipkeeper/internal/server/config"
)

func testConfig(backend string) *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.Backend = backend
	c.EndpointAddrGRPC = "127.0.0.1:0"
	return c
}

func TestNewApp_MemoryBackend(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(config.BackendMemory), logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &mirror.Memory{}, app.Backend())
	assert.NoError(t, app.Close())
}

func TestNewApp_S3Backend(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(config.BackendS3), logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &objectstore.Backend{}, app.Backend())
}

func TestNewApp_UnknownBackend(t *testing.T) {
	_, err := NewApp(context.Background(), testConfig("mysql"), logging.Nop())
	assert.Error(t, err)
}

func TestApp_IssueToken(t *testing.T) {
	cfg := testConfig(config.BackendMemory)
	app, err := NewApp(context.Background(), cfg, logging.Nop())
	require.NoError(t, err)

	token, err := app.IssueToken("acc-7")
	require.NoError(t, err)

	id, err := auth.AccountIDFromToken(token, []byte(cfg.SecretKey))
	require.NoError(t, err)
	assert.Equal(t, "acc-7", id)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(config.BackendMemory), logging.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	assert.NoError(t, <-done)
}
