package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Port          uint16
	Available     bool
	ServiceName   string
	LastRenewedAt time.Time
	ExpiresAt     time.Time
}

func TestRenderLeasesSkipsFreeSlots(t *testing.T) {
	engine, err := New()
	require.NoError(t, err)

	renewed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	out, err := engine.Render("leases.tmpl", struct {
		StartPort, EndPort uint16
		TimeoutSeconds     int64
		Active             int
		Leases             []row
	}{
		StartPort:      40000,
		EndPort:        40001,
		TimeoutSeconds: 300,
		Active:         1,
		Leases: []row{
			{Port: 40000, ServiceName: "FT Server", LastRenewedAt: renewed, ExpiresAt: renewed.Add(5 * time.Minute)},
			{Port: 40001, Available: true},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "range 40000-40001\ttimeout 300s\tactive 1\n"+
		"PORT\tSERVICE\tRENEWED\tEXPIRES\n"+
		"40000\tFT Server\t2024-01-01T12:00:00Z\t2024-01-01T12:05:00Z\n", out)
}

func TestRenderEvents(t *testing.T) {
	engine, err := New()
	require.NoError(t, err)

	out, err := engine.Render("events.tmpl", struct {
		Events []struct {
			At          time.Time
			Type        string
			ServiceName string
			Port        uint16
		}
	}{
		Events: []struct {
			At          time.Time
			Type        string
			ServiceName string
			Port        uint16
		}{{Type: "stopped"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "AT\tTYPE\tSERVICE\tPORT\n-\tstopped\t-\t0\n", out)
}

func TestRenderUnknownTemplate(t *testing.T) {
	engine, err := New()
	require.NoError(t, err)

	_, err = engine.Render("missing.tmpl", nil)
	assert.Error(t, err)

	var nilEngine *Engine
	_, err = nilEngine.Render("leases.tmpl", nil)
	assert.Error(t, err)
}

func TestRenderLeaseShowsDashForUnsetFields(t *testing.T) {
	engine, err := New()
	require.NoError(t, err)

	out, err := engine.Render("lease.tmpl", row{Port: 40001, Available: true})
	require.NoError(t, err)
	assert.Equal(t, "PORT\tSERVICE\tRENEWED\tEXPIRES\n40001\t-\t-\t-\n", out)
}
