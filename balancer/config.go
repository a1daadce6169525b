package balancer

import (
	"fmt"
	"time"
)

type Config struct {
	Ring struct {
		// 环槽位数，默认 512
		NumSlots int
		// 每个后端的虚拟节点数，默认 9
		NumVirtuals int
	}
	Health struct {
		// 健康检查间隔，默认 5s
		Interval time.Duration
		// 单次探测超时，默认 2s
		ProbeTimeout time.Duration
	}
	Router struct {
		// 转发请求超时，默认 2s
		ForwardTimeout time.Duration
	}
	Backends struct {
		// 后端地址协议与端口，server4 -> http://server4:5000
		Scheme string
		Port   int
		// 启动时已知的后端
		Initial []string
	}
}

// HealthConfig is the part of Config used by Monitor.
type HealthConfig struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
}

// RouterConfig is the part of Config used by Router.
type RouterConfig struct {
	ForwardTimeout time.Duration
}

func DefaultConfig() *Config {
	c := &Config{}
	c.Ring.NumSlots = 512
	c.Ring.NumVirtuals = 9
	c.Health.Interval = 5 * time.Second
	c.Health.ProbeTimeout = 2 * time.Second
	c.Router.ForwardTimeout = 2 * time.Second
	c.Backends.Scheme = "http"
	c.Backends.Port = 5000
	c.Backends.Initial = []string{"server1", "server2", "server3"}
	return c
}

// Validate reports configuration errors that would otherwise only show up
// while placing backends.
func (c *Config) Validate() error {
	if c.Ring.NumSlots <= 0 {
		return fmt.Errorf("config: ring slots must be positive: %d", c.Ring.NumSlots)
	}
	if c.Ring.NumVirtuals <= 0 || c.Ring.NumVirtuals > c.Ring.NumSlots {
		return fmt.Errorf("config: virtuals must be in [1, %d]: %d", c.Ring.NumSlots, c.Ring.NumVirtuals)
	}
	if n := len(c.Backends.Initial) * c.Ring.NumVirtuals; n > c.Ring.NumSlots {
		return fmt.Errorf("config: %d initial backends need %d slots, ring has %d: %w",
			len(c.Backends.Initial), n, c.Ring.NumSlots, ErrRingFull)
	}
	if c.Health.Interval <= 0 {
		return fmt.Errorf("config: health interval must be positive: %s", c.Health.Interval)
	}
	if c.Health.ProbeTimeout <= 0 {
		return fmt.Errorf("config: probe timeout must be positive: %s", c.Health.ProbeTimeout)
	}
	if c.Router.ForwardTimeout <= 0 {
		return fmt.Errorf("config: forward timeout must be positive: %s", c.Router.ForwardTimeout)
	}
	if c.Backends.Port <= 0 || c.Backends.Port > 65535 {
		return fmt.Errorf("config: invalid backend port: %d", c.Backends.Port)
	}
	return nil
}

func (c *Config) HealthConfig() HealthConfig {
	return HealthConfig{
		Interval:     c.Health.Interval,
		ProbeTimeout: c.Health.ProbeTimeout,
	}
}

func (c *Config) RouterConfig() RouterConfig {
	return RouterConfig{ForwardTimeout: c.Router.ForwardTimeout}
}

// Resolver returns the name resolver for the configured backend scheme and
// port.
func (c *Config) Resolver() NameResolver {
	return NameResolver{Scheme: c.Backends.Scheme, Port: c.Backends.Port}
}

// NewRegistry builds the ring, pool and registry described by c and
// registers the initial backends.
func (c *Config) NewRegistry() (*Registry, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	ring, err := NewHashRing(c.Ring.NumSlots, c.Ring.NumVirtuals, nil)
	if err != nil {
		return nil, err
	}
	reg := NewRegistry(NewPool(ring), c.Resolver())
	if _, _, err := reg.Register(c.Backends.Initial); err != nil {
		return nil, err
	}
	return reg, nil
}
