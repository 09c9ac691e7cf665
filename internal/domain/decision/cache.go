package decision

import (
	"container/list"
	"encoding/json"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/cerberus-gate/cerberus/internal/domain/guardrail"
)

// DefaultCompiledCacheSize bounds the compiled-guardrail cache.
const DefaultCompiledCacheSize = 256

// CompiledCache memoises built guardrail instances keyed by the hash of
// type tag plus configuration. Regex and CEL compilation dominate
// guardrail construction cost; identical effective configs across
// requests reuse one instance. Guardrails are stateless after
// construction, so sharing is safe.
type CompiledCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[uint64]*list.Element
	order   *list.List
}

type cacheEntry struct {
	key       uint64
	guardrail guardrail.Guardrail
}

// NewCompiledCache creates a cache holding up to maxSize instances,
// evicting least recently used beyond that.
func NewCompiledCache(maxSize int) *CompiledCache {
	if maxSize <= 0 {
		maxSize = DefaultCompiledCacheSize
	}
	return &CompiledCache{
		maxSize: maxSize,
		entries: make(map[uint64]*list.Element),
		order:   list.New(),
	}
}

// compiledKey hashes a guardrail type and its config. encoding/json
// sorts map keys, so equal configs hash equally regardless of insertion
// order. ok is false when the config cannot be serialised.
func compiledKey(guardrailType string, config map[string]any) (uint64, bool) {
	raw, err := json.Marshal(config)
	if err != nil {
		return 0, false
	}
	d := xxhash.New()
	_, _ = d.WriteString(guardrailType)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(raw)
	return d.Sum64(), true
}

func (c *CompiledCache) get(key uint64) (guardrail.Guardrail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).guardrail, true
}

func (c *CompiledCache) put(key uint64, g guardrail.Guardrail) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry).guardrail = g
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, guardrail: g})
	if c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached instances.
func (c *CompiledCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
