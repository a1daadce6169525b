package balancer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, 512, c.Ring.NumSlots)
	assert.Equal(t, 9, c.Ring.NumVirtuals)
	assert.Equal(t, 5*time.Second, c.HealthConfig().Interval)
	assert.Equal(t, 2*time.Second, c.RouterConfig().ForwardTimeout)

	reg, err := c.NewRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"server1", "server2", "server3"}, Names(reg.Known()))
	assert.Empty(t, reg.ListActive(), "backends become active only after a health check")
}

func TestConfigValidate(t *testing.T) {
	for _, test := range []struct {
		name   string
		modify func(*Config)
	}{
		{"slots", func(c *Config) { c.Ring.NumSlots = 0 }},
		{"virtuals", func(c *Config) { c.Ring.NumVirtuals = 0 }},
		{"virtuals over slots", func(c *Config) { c.Ring.NumVirtuals = 1024 }},
		{"interval", func(c *Config) { c.Health.Interval = 0 }},
		{"probe timeout", func(c *Config) { c.Health.ProbeTimeout = -1 }},
		{"forward timeout", func(c *Config) { c.Router.ForwardTimeout = 0 }},
		{"port", func(c *Config) { c.Backends.Port = 70000 }},
	} {
		t.Run(test.name, func(t *testing.T) {
			c := DefaultConfig()
			test.modify(c)
			assert.Error(t, c.Validate())
		})
	}

	c := DefaultConfig()
	c.Ring.NumSlots = 16
	assert.ErrorIs(t, c.Validate(), ErrRingFull)

	c = DefaultConfig()
	c.Backends.Initial = []string{"nonumber"}
	_, err := c.NewRegistry()
	assert.ErrorIs(t, err, ErrInvalidName)
}
