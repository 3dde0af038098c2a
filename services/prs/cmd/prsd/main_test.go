package main

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prsd/services/prs/internal/config"
)

func TestRootCommandRejectsInvalidRange(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--env-file", t.TempDir() + "/none.env", "-s", "40099", "-e", "40000"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below start port")
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"service-port", "start-port", "end-port", "timeout", "host", "admin-addr", "env-file"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	for short, long := range map[string]string{"p": "service-port", "s": "start-port", "e": "end-port", "t": "timeout"} {
		f := cmd.Flags().ShorthandLookup(short)
		require.NotNil(t, f, short)
		assert.Equal(t, long, f.Name)
	}
}

func TestOpenSinksDisabled(t *testing.T) {
	cfg := config.Config{Events: config.EventsConfig{Buffer: 1}}
	sinks, reader, closeAll, err := openSinks(context.Background(), cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	assert.Empty(t, sinks)
	assert.Nil(t, reader)
	closeAll()
}
