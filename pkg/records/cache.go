package records

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/deskforge/deskforge/pkg/apps"
)

// AppSource resolves apps and their field definitions. Implemented by
// apps.Store.
type AppSource interface {
	GetApp(ctx context.Context, code string) (*apps.App, error)
	ListFields(ctx context.Context, appID int64) ([]*apps.Field, error)
}

// FieldCache caches field definitions per app with a short TTL.
// Definitions change rarely but are read on every validated mutation.
type FieldCache struct {
	source AppSource
	lru    *expirable.LRU[string, []*apps.Field]
}

func NewFieldCache(source AppSource, ttl time.Duration, size int) *FieldCache {
	if size <= 0 {
		size = 256
	}
	var lru *expirable.LRU[string, []*apps.Field]
	if ttl > 0 {
		lru = expirable.NewLRU[string, []*apps.Field](size, nil, ttl)
	}
	return &FieldCache{source: source, lru: lru}
}

// Fields returns an app's field definitions, cached by app code
func (c *FieldCache) Fields(ctx context.Context, app *apps.App) ([]*apps.Field, error) {
	if c.lru != nil {
		if fields, ok := c.lru.Get(app.Code); ok {
			return fields, nil
		}
	}
	fields, err := c.source.ListFields(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	if c.lru != nil {
		c.lru.Add(app.Code, fields)
	}
	return fields, nil
}

// Invalidate drops an app's cached definitions after a schema change
func (c *FieldCache) Invalidate(appCode string) {
	if c.lru != nil {
		c.lru.Remove(appCode)
	}
}
