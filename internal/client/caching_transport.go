package client

import (
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// NewCachingHTTPClient creates an HTTP client that honours Cache-Control
// headers, used for the auth service's public settings endpoint.
// With an empty cacheDir the cache lives in memory.
func NewCachingHTTPClient(cacheDir string, timeout time.Duration) *http.Client {
	if cacheDir == "" {
		return NewInMemoryCachingHTTPClient(timeout)
	}

	// Disk cache survives restarts of the consumer app
	return &http.Client{
		Transport: httpcache.NewTransport(diskcache.New(cacheDir)),
		Timeout:   timeout,
	}
}

// NewInMemoryCachingHTTPClient creates an HTTP client with in-memory caching only.
func NewInMemoryCachingHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: httpcache.NewTransport(httpcache.NewMemoryCache()),
		Timeout:   timeout,
	}
}
