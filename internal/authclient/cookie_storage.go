package authclient

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	// maxChunkSize keeps every cookie comfortably under the 4KiB browser limit.
	maxChunkSize = 3180

	base64Prefix = "base64-"
)

// CookieOptions controls the attributes of cookies written by CookieStorage.
type CookieOptions struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int // seconds
}

// DefaultCookieOptions returns options suitable for a same-site dashboard.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Path:     "/",
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   400 * 24 * 60 * 60, // 400 days
	}
}

// CookieStorage is a request-scoped Storage backed by the request's cookies.
//
// Reads see the incoming cookies plus any writes made through the storage.
// Every write is recorded so the caller can forward it on the response;
// large values are split across name.0, name.1, ... chunk cookies.
type CookieStorage struct {
	mu      sync.Mutex
	opts    CookieOptions
	values  map[string]string
	changed map[string]*http.Cookie
	order   []string
}

// NewCookieStorage creates a storage reading the cookies on r.
func NewCookieStorage(r *http.Request, opts CookieOptions) *CookieStorage {
	values := make(map[string]string)
	for _, c := range r.Cookies() {
		values[c.Name] = c.Value
	}

	return &CookieStorage{
		opts:    opts,
		values:  values,
		changed: make(map[string]*http.Cookie),
	}
}

func (c *CookieStorage) GetItem(key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.values[key]; ok {
		return decodeCookieValue(v)
	}

	chunks := c.chunkNames(key)
	if len(chunks) == 0 {
		return "", false, nil
	}

	var sb strings.Builder
	for i := range chunks {
		v, ok := c.values[chunkName(key, i)]
		if !ok {
			// a gap means the chunk set is incomplete
			return "", false, nil
		}
		sb.WriteString(v)
	}

	return decodeCookieValue(sb.String())
}

func (c *CookieStorage) SetItem(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	encoded := base64Prefix + base64.RawURLEncoding.EncodeToString([]byte(value))

	if len(encoded) <= maxChunkSize {
		for _, name := range c.chunkNames(key) {
			c.deleteLocked(name)
		}
		c.setLocked(key, encoded)
		return nil
	}

	if _, ok := c.values[key]; ok {
		c.deleteLocked(key)
	}

	n := 0
	for start := 0; start < len(encoded); start += maxChunkSize {
		end := min(start+maxChunkSize, len(encoded))
		c.setLocked(chunkName(key, n), encoded[start:end])
		n++
	}

	// drop stale chunks left over from a longer previous value
	for _, name := range c.chunkNames(key) {
		if idx, _ := chunkIndex(key, name); idx >= n {
			c.deleteLocked(name)
		}
	}

	return nil
}

func (c *CookieStorage) RemoveItem(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.values[key]; ok {
		c.deleteLocked(key)
	}
	for _, name := range c.chunkNames(key) {
		c.deleteLocked(name)
	}
	return nil
}

// Mutations returns the cookies written through the storage, in write order.
func (c *CookieStorage) Mutations() []*http.Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*http.Cookie, 0, len(c.order))
	for _, name := range c.order {
		ck := *c.changed[name]
		out = append(out, &ck)
	}
	return out
}

func (c *CookieStorage) setLocked(name, value string) {
	c.values[name] = value
	c.recordLocked(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.opts.Path,
		Domain:   c.opts.Domain,
		MaxAge:   c.opts.MaxAge,
		Secure:   c.opts.Secure,
		HttpOnly: true,
		SameSite: c.opts.SameSite,
	})
}

func (c *CookieStorage) deleteLocked(name string) {
	delete(c.values, name)
	c.recordLocked(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     c.opts.Path,
		Domain:   c.opts.Domain,
		MaxAge:   -1,
		Secure:   c.opts.Secure,
		HttpOnly: true,
		SameSite: c.opts.SameSite,
	})
}

func (c *CookieStorage) recordLocked(ck *http.Cookie) {
	if _, ok := c.changed[ck.Name]; !ok {
		c.order = append(c.order, ck.Name)
	}
	c.changed[ck.Name] = ck
}

// chunkNames returns the chunk cookie names present for key, sorted by index.
func (c *CookieStorage) chunkNames(key string) []string {
	var names []string
	for name := range c.values {
		if _, ok := chunkIndex(key, name); ok {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, _ := chunkIndex(key, names[i])
		b, _ := chunkIndex(key, names[j])
		return a < b
	})
	return names
}

func chunkName(key string, i int) string {
	return key + "." + strconv.Itoa(i)
}

func chunkIndex(key, name string) (int, bool) {
	suffix, ok := strings.CutPrefix(name, key+".")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(suffix)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

func decodeCookieValue(v string) (string, bool, error) {
	raw, ok := strings.CutPrefix(v, base64Prefix)
	if !ok {
		return v, true, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", false, fmt.Errorf("%w: invalid cookie encoding: %w", ErrStorage, err)
	}
	return string(data), true, nil
}
