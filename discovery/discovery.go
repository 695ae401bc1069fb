// Package discovery resolves the transport endpoints the client connects to.
//
// A Layout lists candidate endpoints; the client uses the first one. Layouts come from a
// Source (an HTTP layout.json document, etcd, or a static list). The client wraps its
// source in a Cache: the first successful fetch is kept for the process lifetime and is
// never refreshed, not even across reconnects.
package discovery

import (
	"context"
	"errors"
	"sync"
)

var ErrEmptyLayout = errors.New("discovery: layout has no socket endpoints")

// Layout is the discovery document.
type Layout struct {
	Socket []string `json:"socket"`
}

// First returns the preferred endpoint.
func (l *Layout) First() (string, error) {
	if l == nil || len(l.Socket) == 0 {
		return "", ErrEmptyLayout
	}
	return l.Socket[0], nil
}

// Source fetches a layout.
type Source interface {
	Layout(ctx context.Context) (*Layout, error)
}

// Static is a Source that always returns the same endpoints.
type Static []string

func (s Static) Layout(ctx context.Context) (*Layout, error) {
	if len(s) == 0 {
		return nil, ErrEmptyLayout
	}
	return &Layout{Socket: append([]string(nil), s...)}, nil
}

// Cache fetches from its source once and serves the result forever after.
// Failed fetches are not cached.
type Cache struct {
	source Source

	mu     sync.Mutex
	layout *Layout
}

func NewCache(source Source) *Cache {
	return &Cache{source: source}
}

func (c *Cache) Layout(ctx context.Context) (*Layout, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.layout != nil {
		return c.layout, nil
	}
	layout, err := c.source.Layout(ctx)
	if err != nil {
		return nil, err
	}
	if len(layout.Socket) == 0 {
		return nil, ErrEmptyLayout
	}
	c.layout = layout
	return layout, nil
}

// Cached returns the stored layout without fetching, or nil.
func (c *Cache) Cached() *Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layout
}
