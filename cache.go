package authz

import (
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
)

// decisionCache memoizes allow/deny results for context-free checks.
// Requests carrying a runtime Context are never cached: their outcome
// depends on attributes the cache key cannot capture.
type decisionCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

const defaultDecisionTTL = time.Second

func newDecisionCache(numCounters, maxCost, bufferItems int64, ttl time.Duration) (*decisionCache, error) {
	if numCounters <= 0 {
		numCounters = 10_000
	}
	if maxCost <= 0 {
		maxCost = 1 << 20
	}
	if bufferItems <= 0 {
		bufferItems = 64
	}
	if ttl <= 0 {
		ttl = defaultDecisionTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &decisionCache{cache: c, ttl: ttl}, nil
}

func decisionKey(req *PermissionCheckRequest) string {
	var b strings.Builder
	b.Grow(len(req.UserID) + len(req.ResourceID) + len(req.ResourcePath) + 24)
	b.WriteString(req.UserID)
	b.WriteByte('|')
	b.WriteString(string(req.ResourceType))
	b.WriteByte('|')
	b.WriteString(req.ResourceID)
	b.WriteByte('|')
	b.WriteString(req.ResourcePath)
	b.WriteByte('|')
	b.WriteString(string(req.Action))
	return b.String()
}

func (d *decisionCache) get(req *PermissionCheckRequest) (*PermissionCheckResult, bool) {
	if d == nil || len(req.Context) > 0 {
		return nil, false
	}
	v, ok := d.cache.Get(decisionKey(req))
	if !ok {
		return nil, false
	}
	res, ok := v.(*PermissionCheckResult)
	if !ok {
		return nil, false
	}
	cp := *res
	return &cp, true
}

func (d *decisionCache) put(req *PermissionCheckRequest, res *PermissionCheckResult) {
	if d == nil || len(req.Context) > 0 {
		return
	}
	cp := *res
	d.cache.SetWithTTL(decisionKey(req), &cp, 1, d.ttl)
}

// invalidate drops every cached decision. Called on any policy mutation;
// correctness over cleverness, the TTL is short anyway.
func (d *decisionCache) invalidate() {
	if d == nil {
		return
	}
	d.cache.Clear()
}
