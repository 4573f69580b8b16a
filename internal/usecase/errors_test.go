package usecase

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := newError(KindExternalService, "LeadLifecycle.ProcessFollowup", "failed to fetch", cause)

	wrapped := fmt.Errorf("scheduler: %w", err)
	assert.Equal(t, KindExternalService, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindExternalService))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "LeadLifecycle.ProcessFollowup: failed to fetch: dial tcp: i/o timeout", err.Error())
	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", err.Kind.String())

	assert.Equal(t, KindUnknown, KindOf(cause))
	assert.False(t, IsKind(nil, KindUnknown))

	assert.True(t, IsExpected(newError(KindConflict, "", "dup", nil)))
	assert.True(t, IsExpected(newError(KindValidation, "", "no phone", nil)))
	assert.False(t, IsExpected(newError(KindNotFound, "", "gone", nil)))
}
