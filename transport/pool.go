package transport

import (
	"net"
	"net/http"
	"time"
)

// PoolConfig sizes the idle connection pool kept per instance.
// Connections are created lazily and reused across calls.
type PoolConfig struct {
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`          // Across all instances
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"` // Per instance
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`       // Idle conns older than this are closed
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         5 * time.Second,
	}
}

func (p PoolConfig) withDefaults() PoolConfig {
	d := DefaultPoolConfig()
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = d.MaxIdleConns
	}
	if p.MaxIdleConnsPerHost <= 0 {
		p.MaxIdleConnsPerHost = d.MaxIdleConnsPerHost
	}
	if p.IdleConnTimeout <= 0 {
		p.IdleConnTimeout = d.IdleConnTimeout
	}
	if p.DialTimeout <= 0 {
		p.DialTimeout = d.DialTimeout
	}
	return p
}

// roundTripper builds the pooled http.Transport behind HTTPTransport.
func (p PoolConfig) roundTripper() *http.Transport {
	p = p.withDefaults()
	dialer := &net.Dialer{Timeout: p.DialTimeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          p.MaxIdleConns,
		MaxIdleConnsPerHost:   p.MaxIdleConnsPerHost,
		IdleConnTimeout:       p.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
