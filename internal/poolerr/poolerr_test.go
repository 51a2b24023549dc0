package poolerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindClassifiesWrapped(t *testing.T) {
	cause := errors.New("driver: connection refused")
	err := Wrap(ErrConnectFailed, "connect failed after retries", cause)

	assert.True(t, errors.Is(err, ErrConnectFailed))
	assert.Equal(t, ErrConnectFailed, Kind(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKindUnknownReturnsNil(t *testing.T) {
	assert.Nil(t, Kind(errors.New("not ours")))
}

func TestValidationFailedClassifiedByKind(t *testing.T) {
	err := NewValidationFailed(errors.New("stale row"))
	assert.True(t, IsValidationFailed(err))
	// Kind still classifies it (internal use), but it is never meant to be
	// surfaced through the public Acquire/Release error paths.
	require.NotNil(t, Kind(err))
}

func TestWrapWithNilCause(t *testing.T) {
	err := Wrap(ErrTimeout, "acquire timeout", nil)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, "acquire timeout", err.Error())
}
