package client

import (
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"bunkr-rpc/config"
	"bunkr-rpc/discovery"
	"bunkr-rpc/middleware"
	"bunkr-rpc/transport"
)

// NewFromConfig builds a client from a loaded configuration. Options given here are
// applied after the ones derived from cfg.
//
// Endpoint resolution prefers cfg.Endpoints, then etcd, then {URL}{LayoutPath}.
func NewFromConfig(cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}

	var closers []io.Closer
	var source discovery.Source
	switch {
	case len(cfg.Endpoints) > 0:
		source = discovery.Static(cfg.Endpoints)
	case len(cfg.EtcdEndpoints) > 0:
		etcd, err := discovery.NewEtcdSource(cfg.EtcdEndpoints, cfg.EtcdPrefix)
		if err != nil {
			return nil, fmt.Errorf("client config: %w", err)
		}
		source = etcd
		closers = append(closers, etcd)
	default:
		src := discovery.NewHTTPSource(cfg.URL, &http.Client{Timeout: cfg.HandshakeTimeout})
		if cfg.LayoutPath != "" {
			src.Path = cfg.LayoutPath
		}
		source = src
	}

	dialer := transport.NewDialer(transport.Options{
		HandshakeTimeout:  cfg.HandshakeTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})

	base := []Option{
		WithSource(source),
		WithDialer(dialer),
		WithReconnectDelay(cfg.ReconnectDelay),
		WithIdleTimeout(cfg.IdleTimeout),
		WithUserAgent(cfg.UserAgent),
	}
	// Resolve the logger first so the middlewares log where the client does
	var o options
	o.logger = zerolog.Nop()
	for _, opt := range opts {
		opt(&o)
	}

	mws := []middleware.Middleware{middleware.LoggingMiddleware(o.logger)}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.RetryMax > 0 {
		mws = append(mws, middleware.RetryMiddleware(cfg.RetryMax, cfg.RetryBaseDelay, IsTemporary, o.logger))
	}
	if cfg.CallTimeout > 0 {
		mws = append(mws, middleware.TimeOutMiddleware(cfg.CallTimeout))
	}
	base = append(base, WithMiddleware(mws...))

	c := New(cfg.URL, cfg.AccessToken, append(base, opts...)...)
	c.closers = closers
	return c, nil
}
