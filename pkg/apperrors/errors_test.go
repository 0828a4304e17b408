package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"unauthorized", Unauthorized("no grant for role %s", "staff"), KindUnauthorized},
		{"feature disabled", FeatureDisabled("bulk delete disabled"), KindFeatureDisabled},
		{"invalid state", InvalidState("app is not deleted"), KindInvalidState},
		{"not found", NotFound("app %s not found", "customers"), KindNotFound},
		{"upstream", Upstream(errors.New("connection refused"), "insert failed"), KindUpstreamFailure},
		{"plain error defaults to upstream", errors.New("boom"), KindUpstreamFailure},
		{"wrapped classified error", fmt.Errorf("outer: %w", NotFound("gone")), KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("soft delete: %w", InvalidState("already deleted"))
	assert.True(t, IsKind(err, KindInvalidState))
	assert.False(t, IsKind(err, KindUnauthorized))
	assert.False(t, IsKind(errors.New("plain"), KindInvalidState))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Upstream(cause, "webhook delivery failed")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "webhook delivery failed")
	assert.Contains(t, err.Error(), "dial tcp")
}
