package permissions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu         sync.Mutex
	grants     map[string]*Grant // keyed by app|role
	hidden     map[string][]string
	grantCalls int
	fieldCalls int
	failGrants bool
	failFields bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		grants: make(map[string]*Grant),
		hidden: make(map[string][]string),
	}
}

func (f *fakeSource) GetGrant(ctx context.Context, appCode, role string) (*Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grantCalls++
	if f.failGrants {
		return nil, errors.New("storage down")
	}
	return f.grants[appCode+"|"+role], nil
}

func (f *fakeSource) ListHiddenFields(ctx context.Context, appCode, role string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fieldCalls++
	if f.failFields {
		return nil, errors.New("storage down")
	}
	return f.hidden[appCode+"|"+role], nil
}

type staticSuperRoles []string

func (s staticSuperRoles) Contains(role string) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

func TestEvaluateDenyByDefault(t *testing.T) {
	e := NewEvaluator(newFakeSource(), staticSuperRoles{"admin"}, EvaluatorConfig{})
	ctx := context.Background()

	for _, action := range []Action{ActionView, ActionAdd, ActionEdit, ActionDelete, ActionManage} {
		t.Run(string(action), func(t *testing.T) {
			decision, err := e.Evaluate(ctx, "staff", "customers", action)
			require.NoError(t, err)
			assert.False(t, decision.Allowed)
		})
	}
}

func TestEvaluateUnknownAppAndRoleDeny(t *testing.T) {
	source := newFakeSource()
	source.grants["customers|staff"] = &Grant{AppCode: "customers", Role: "staff", CanView: true}
	e := NewEvaluator(source, staticSuperRoles{"admin"}, EvaluatorConfig{})
	ctx := context.Background()

	decision, err := e.Evaluate(ctx, "staff", "no-such-app", ActionView)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = e.Evaluate(ctx, "no-such-role", "customers", ActionView)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestEvaluateSuperRoleAlwaysAllowed(t *testing.T) {
	e := NewEvaluator(newFakeSource(), staticSuperRoles{"admin", "owner"}, EvaluatorConfig{})
	ctx := context.Background()

	for _, action := range []Action{ActionView, ActionAdd, ActionEdit, ActionDelete, ActionManage} {
		decision, err := e.Evaluate(ctx, "admin", "anything", action)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.True(t, decision.SuperRole)
		assert.Empty(t, decision.HiddenFields, "super-roles see every field")
	}
}

func TestEvaluateIndependentFlags(t *testing.T) {
	source := newFakeSource()
	// can_manage alone: the holder may configure the app but not read
	// or mutate its records.
	source.grants["customers|ops"] = &Grant{AppCode: "customers", Role: "ops", CanManage: true}
	e := NewEvaluator(source, staticSuperRoles{"admin"}, EvaluatorConfig{})
	ctx := context.Background()

	tests := []struct {
		action Action
		want   bool
	}{
		{ActionManage, true},
		{ActionView, false},
		{ActionAdd, false},
		{ActionEdit, false},
		{ActionDelete, false},
	}
	for _, tt := range tests {
		decision, err := e.Evaluate(ctx, "ops", "customers", tt.action)
		require.NoError(t, err)
		assert.Equal(t, tt.want, decision.Allowed, tt.action)
	}
}

func TestEvaluateViewResolvesHiddenFields(t *testing.T) {
	source := newFakeSource()
	source.grants["customers|staff"] = &Grant{AppCode: "customers", Role: "staff", CanView: true, CanEdit: true}
	source.hidden["customers|staff"] = []string{"salary", "ssn"}
	e := NewEvaluator(source, staticSuperRoles{"admin"}, EvaluatorConfig{})
	ctx := context.Background()

	decision, err := e.Evaluate(ctx, "staff", "customers", ActionView)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, map[string]bool{"salary": true, "ssn": true}, decision.HiddenFields)

	// Non-view actions never resolve field visibility.
	decision, err = e.Evaluate(ctx, "staff", "customers", ActionEdit)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Nil(t, decision.HiddenFields)
}

func TestEvaluateLazyFieldLoading(t *testing.T) {
	source := newFakeSource()
	source.grants["customers|staff"] = &Grant{AppCode: "customers", Role: "staff", CanView: true, CanEdit: true}
	e := NewEvaluator(source, staticSuperRoles{"admin"}, EvaluatorConfig{CacheTTL: time.Minute})
	ctx := context.Background()

	_, err := e.Evaluate(ctx, "staff", "customers", ActionEdit)
	require.NoError(t, err)
	assert.Equal(t, 0, source.fieldCalls, "edit must not load field visibility")

	_, err = e.Evaluate(ctx, "staff", "customers", ActionView)
	require.NoError(t, err)
	assert.Equal(t, 1, source.fieldCalls)
}

func TestEvaluateStorageFailureFailsClosed(t *testing.T) {
	source := newFakeSource()
	source.failGrants = true
	e := NewEvaluator(source, staticSuperRoles{"admin"}, EvaluatorConfig{})

	decision, err := e.Evaluate(context.Background(), "staff", "customers", ActionView)
	assert.Error(t, err)
	assert.False(t, decision.Allowed)
}

func TestEvaluateInvalidActionDenied(t *testing.T) {
	source := newFakeSource()
	source.grants["customers|staff"] = &Grant{AppCode: "customers", Role: "staff", CanView: true}
	e := NewEvaluator(source, staticSuperRoles{"admin"}, EvaluatorConfig{})

	decision, err := e.Evaluate(context.Background(), "staff", "customers", Action("drop_tables"))
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestEvaluateCachesSnapshots(t *testing.T) {
	source := newFakeSource()
	source.grants["customers|staff"] = &Grant{AppCode: "customers", Role: "staff", CanView: true}
	e := NewEvaluator(source, staticSuperRoles{"admin"}, EvaluatorConfig{CacheTTL: time.Minute})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := e.Evaluate(ctx, "staff", "customers", ActionView)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, source.grantCalls)

	e.Invalidate(ctx, "customers", "staff")
	_, err := e.Evaluate(ctx, "staff", "customers", ActionView)
	require.NoError(t, err)
	assert.Equal(t, 2, source.grantCalls)
}

func TestEvaluateNoCacheReadsEveryTime(t *testing.T) {
	source := newFakeSource()
	source.grants["customers|staff"] = &Grant{AppCode: "customers", Role: "staff", CanView: true}
	e := NewEvaluator(source, staticSuperRoles{"admin"}, EvaluatorConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(ctx, "staff", "customers", ActionAdd)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, source.grantCalls)
}

func TestEvaluateZeroTTLSkipsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	source := newFakeSource()
	source.grants["customers|staff"] = &Grant{AppCode: "customers", Role: "staff", CanView: true}
	e := NewEvaluator(source, staticSuperRoles{"admin"}, EvaluatorConfig{Redis: client})
	ctx := context.Background()

	_, err := e.Evaluate(ctx, "staff", "customers", ActionView)
	require.NoError(t, err)
	assert.Empty(t, mr.Keys(), "a disabled cache must not write snapshots")
}

func TestEvaluateRedisSnapshotsExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	source := newFakeSource()
	source.grants["customers|staff"] = &Grant{AppCode: "customers", Role: "staff", CanView: true}
	e := NewEvaluator(source, staticSuperRoles{"admin"},
		EvaluatorConfig{CacheTTL: time.Minute, Redis: client})
	ctx := context.Background()

	_, err := e.Evaluate(ctx, "staff", "customers", ActionView)
	require.NoError(t, err)

	key := redisKey("customers", "staff")
	require.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key), time.Duration(0), "shared snapshots must carry an expiry")
}
