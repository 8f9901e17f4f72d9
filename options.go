package authz

import (
	"time"

	"github.com/teamhub/authz/logger"
)

const defaultMaxInheritDepth = 8

type options struct {
	log             logger.Logger
	traceID         logger.TraceIDFunc
	cacheEnabled    bool
	cacheTTL        time.Duration
	cacheCounters   int64
	cacheMaxCost    int64
	cacheBufferSize int64
	maxInheritDepth int
	auditCapacity   int
}

func defaultOptions() *options {
	return &options{
		log:             logger.NewNullLogger(),
		cacheTTL:        defaultDecisionTTL,
		maxInheritDepth: defaultMaxInheritDepth,
		auditCapacity:   defaultAuditCapacity,
	}
}

// Option configures an Evaluator or a Manager.
type Option func(*options)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithTraceIDFunc attaches a trace ID generator; when set, every
// decision log line carries a trace_id field.
func WithTraceIDFunc(fn logger.TraceIDFunc) Option {
	return func(o *options) { o.traceID = fn }
}

// WithDecisionCache enables the ristretto decision cache with the given
// sizing. Zero values fall back to defaults.
func WithDecisionCache(numCounters, maxCost, bufferItems int64) Option {
	return func(o *options) {
		o.cacheEnabled = true
		o.cacheCounters = numCounters
		o.cacheMaxCost = maxCost
		o.cacheBufferSize = bufferItems
	}
}

// WithDecisionCacheTTL overrides the cache entry lifetime.
func WithDecisionCacheTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.cacheTTL = ttl
		}
	}
}

// WithMaxInheritDepth bounds parent-path ACL recursion. Checks deeper
// than the bound deny rather than recurse further.
func WithMaxInheritDepth(depth int) Option {
	return func(o *options) {
		if depth > 0 {
			o.maxInheritDepth = depth
		}
	}
}

// WithAuditCapacity sets the audit ring buffer size (Manager only).
func WithAuditCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.auditCapacity = n
		}
	}
}
