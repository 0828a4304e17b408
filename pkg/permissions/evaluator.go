package permissions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/deskforge/deskforge/pkg/observability"
)

// SnapshotSource loads policy rows for the evaluator
type SnapshotSource interface {
	GetGrant(ctx context.Context, appCode, role string) (*Grant, error)
	ListHiddenFields(ctx context.Context, appCode, role string) ([]string, error)
}

// SuperRoleChecker reports whether a role is a reserved super-role.
// Implemented by config.SuperRoleSet.
type SuperRoleChecker interface {
	Contains(role string) bool
}

// EvaluatorConfig holds evaluator settings
type EvaluatorConfig struct {
	// CacheTTL bounds snapshot staleness. Zero disables caching and
	// every evaluation reads storage directly.
	CacheTTL time.Duration
	// CacheSize is the in-process LRU capacity (entries, one per
	// (app, role) pair). Defaults to 1024.
	CacheSize int
	// Redis, when set, adds a shared cache tier between the LRU and
	// storage so multiple instances converge on the same snapshots.
	Redis *redis.Client

	Metrics *observability.Metrics
	Logger  *observability.Logger
}

type cacheEntry struct {
	Snapshot     Snapshot `json:"snapshot"`
	FieldsLoaded bool     `json:"fields_loaded"`
}

// Evaluator resolves (role, app, action) to an allow/deny decision plus
// the field visibility set. Pure lookup: enforcing the decision is the
// caller's responsibility.
//
// Deny-by-default: a missing grant row, an unknown app, and an unknown
// role all evaluate to denied. The only bypass is the reserved
// super-role set, which is configuration rather than stored policy.
type Evaluator struct {
	source     SnapshotSource
	superRoles SuperRoleChecker
	lru        *expirable.LRU[string, cacheEntry]
	redis      *redis.Client
	ttl        time.Duration
	metrics    *observability.Metrics
	logger     *observability.Logger
}

// NewEvaluator creates a permission evaluator
func NewEvaluator(source SnapshotSource, superRoles SuperRoleChecker, cfg EvaluatorConfig) *Evaluator {
	e := &Evaluator{
		source:     source,
		superRoles: superRoles,
		ttl:        cfg.CacheTTL,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
	if e.logger == nil {
		e.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	// A zero TTL disables both tiers; a redis tier without an expiry
	// would hold snapshots forever.
	if cfg.CacheTTL > 0 {
		size := cfg.CacheSize
		if size <= 0 {
			size = 1024
		}
		e.lru = expirable.NewLRU[string, cacheEntry](size, nil, cfg.CacheTTL)
		e.redis = cfg.Redis
	}
	return e
}

// Evaluate resolves whether role may perform action on appCode.
// HiddenFields is resolved only for ActionView.
//
// A storage failure returns the error alongside a denied decision, so a
// caller that ignores the error still fails closed.
func (e *Evaluator) Evaluate(ctx context.Context, role, appCode string, action Action) (Decision, error) {
	if !action.Valid() {
		return Decision{}, nil
	}

	if e.superRoles != nil && e.superRoles.Contains(role) {
		e.observe(action, true)
		return Decision{Allowed: true, SuperRole: true}, nil
	}

	entry, err := e.loadSnapshot(ctx, appCode, role, action == ActionView)
	if err != nil {
		e.observe(action, false)
		return Decision{}, fmt.Errorf("permission lookup failed: %w", err)
	}

	if entry.Snapshot.Grant == nil || !entry.Snapshot.Grant.Allows(action) {
		e.observe(action, false)
		return Decision{}, nil
	}

	decision := Decision{Allowed: true}
	if action == ActionView {
		decision.HiddenFields = make(map[string]bool, len(entry.Snapshot.HiddenFields))
		for _, code := range entry.Snapshot.HiddenFields {
			decision.HiddenFields[code] = true
		}
	}

	e.observe(action, true)
	return decision, nil
}

func (e *Evaluator) observe(action Action, allowed bool) {
	if e.metrics != nil {
		e.metrics.ObservePermissionCheck(string(action), allowed)
	}
}

func cacheKey(appCode, role string) string {
	return appCode + "|" + role
}

func redisKey(appCode, role string) string {
	return "deskforge:perm:" + appCode + ":" + role
}

// loadSnapshot returns the policy snapshot for (appCode, role), loading
// hidden fields only when needFields is set.
func (e *Evaluator) loadSnapshot(ctx context.Context, appCode, role string, needFields bool) (cacheEntry, error) {
	key := cacheKey(appCode, role)

	if e.lru != nil {
		if entry, ok := e.lru.Get(key); ok && (!needFields || entry.FieldsLoaded) {
			e.cacheHit("lru")
			return entry, nil
		}
	}

	if e.redis != nil {
		if entry, ok := e.redisGet(ctx, appCode, role); ok && (!needFields || entry.FieldsLoaded) {
			e.cacheHit("redis")
			if e.lru != nil {
				e.lru.Add(key, entry)
			}
			return entry, nil
		}
	}
	e.cacheMiss()

	grant, err := e.source.GetGrant(ctx, appCode, role)
	if err != nil {
		return cacheEntry{}, err
	}

	entry := cacheEntry{
		Snapshot: Snapshot{
			AppCode:  appCode,
			Role:     role,
			Grant:    grant,
			LoadedAt: time.Now(),
		},
	}

	if needFields {
		hidden, err := e.source.ListHiddenFields(ctx, appCode, role)
		if err != nil {
			return cacheEntry{}, err
		}
		entry.Snapshot.HiddenFields = hidden
		entry.FieldsLoaded = true
	}

	if e.lru != nil {
		e.lru.Add(key, entry)
	}
	if e.redis != nil {
		e.redisSet(ctx, appCode, role, entry)
	}

	return entry, nil
}

func (e *Evaluator) cacheHit(tier string) {
	if e.metrics != nil {
		e.metrics.PermissionCacheHits.WithLabelValues(tier).Inc()
	}
}

func (e *Evaluator) cacheMiss() {
	if e.metrics != nil {
		e.metrics.PermissionCacheMisses.WithLabelValues("snapshot").Inc()
	}
}

// redisGet reads a snapshot from the shared cache tier. Any failure is a
// miss; the cache never blocks an evaluation.
func (e *Evaluator) redisGet(ctx context.Context, appCode, role string) (cacheEntry, bool) {
	data, err := e.redis.Get(ctx, redisKey(appCode, role)).Result()
	if err == redis.Nil {
		return cacheEntry{}, false
	}
	if err != nil {
		e.logger.WithError(err).Debug("permission cache read failed")
		return cacheEntry{}, false
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		e.redis.Del(ctx, redisKey(appCode, role))
		return cacheEntry{}, false
	}

	return entry, true
}

func (e *Evaluator) redisSet(ctx context.Context, appCode, role string, entry cacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := e.redis.Set(ctx, redisKey(appCode, role), data, e.ttl).Err(); err != nil {
		e.logger.WithError(err).Debug("permission cache write failed")
	}
}

// Invalidate drops the cached snapshot for (appCode, role). Called by
// grant and field-permission mutations.
func (e *Evaluator) Invalidate(ctx context.Context, appCode, role string) {
	if e.lru != nil {
		e.lru.Remove(cacheKey(appCode, role))
	}
	if e.redis != nil {
		if err := e.redis.Del(ctx, redisKey(appCode, role)).Err(); err != nil {
			e.logger.WithError(err).Warn("permission cache invalidation failed")
		}
	}
}
