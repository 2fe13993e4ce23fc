// Package cache implements the response cache: a key/value Store with TTLs and
// namespace-wide invalidation used by the read-through middleware.
package cache

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

const (
	keyPrefix = "cache:"
	// Generation counters live outside every namespace prefix so DeletePrefix keeps them.
	generationPrefix = "cachegen:"
)

// Route namespaces. A mutation on a resource invalidates every key in its namespace.
const (
	NamespaceProperties = "properties"
	NamespaceInquiries  = "inquiries"
)

// Per-route TTLs.
const (
	TTLPropertyListing = 600 * time.Second
	TTLFeatured        = 600 * time.Second
	TTLNearby          = 300 * time.Second
	TTLInquiryListing  = 300 * time.Second
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix removes every key starting with prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Generation reads the invalidation counter of a namespace. Unknown namespaces are at 0.
	Generation(ctx context.Context, namespace string) (int64, error)
	BumpGeneration(ctx context.Context, namespace string) (int64, error)
	// SetIfGeneration stores value only while namespace is still at gen. The check and
	// the write are atomic with respect to BumpGeneration.
	SetIfGeneration(ctx context.Context, namespace string, gen int64, key string, value []byte, ttl time.Duration) (bool, error)
}

// Invalidator is what mutating services depend on.
type Invalidator interface {
	InvalidateNamespace(ctx context.Context, namespace string) error
}

type Cache struct {
	store Store
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return c.store.Get(ctx, key)
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.store.Set(ctx, key, value, ttl)
}

func (c *Cache) Generation(ctx context.Context, namespace string) (int64, error) {
	return c.store.Generation(ctx, namespace)
}

// SetIfGeneration drops the write when the namespace was invalidated after gen was read.
func (c *Cache) SetIfGeneration(ctx context.Context, namespace string, gen int64, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.store.SetIfGeneration(ctx, namespace, gen, key, value, ttl)
}

// InvalidateNamespace bumps the generation before deleting, so a response computed
// from pre-mutation data cannot be stored once the delete has run.
func (c *Cache) InvalidateNamespace(ctx context.Context, namespace string) error {
	if _, err := c.store.BumpGeneration(ctx, namespace); err != nil {
		return err
	}
	n, err := c.store.DeletePrefix(ctx, NamespacePrefix(namespace))
	if err != nil {
		return err
	}
	utils.InfoLogger.WithFields(logrus.Fields{"namespace": namespace, "keys": n}).Debug("Cache namespace invalidated")
	return nil
}

func generationKey(namespace string) string {
	return generationPrefix + namespace
}

func NamespacePrefix(namespace string) string {
	return keyPrefix + namespace + ":"
}

// Key builds the cache key for a request. Query parameters are normalized so that
// ?b=2&a=1 and ?a=1&b=2 share an entry; empty values are ignored.
func Key(namespace, scope, path string, query url.Values) string {
	var b strings.Builder
	b.WriteString(NamespacePrefix(namespace))
	b.WriteString(scope)
	b.WriteByte(':')
	b.WriteString(path)

	if q := NormalizeQuery(query); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String()
}

func NormalizeQuery(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		values := make([]string, 0, len(query[k]))
		for _, v := range query[k] {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}
