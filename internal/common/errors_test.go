package common

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitError_UnwrapsToSentinel(t *testing.T) {
	err := &RateLimitError{Action: "upload", RetryAfter: 3 * time.Hour}

	require.True(t, errors.Is(err, ErrRateLimited))
	assert.Contains(t, err.Error(), "upload")
	assert.Contains(t, err.Error(), "3h")
}

func TestRateLimitError_SurvivesWrapping(t *testing.T) {
	inner := &RateLimitError{Action: "handle_change", RetryAfter: time.Minute}
	wrapped := fmt.Errorf("mutation rejected: %w", inner)

	require.True(t, errors.Is(wrapped, ErrRateLimited))

	var rle *RateLimitError
	require.True(t, errors.As(wrapped, &rle))
	assert.Equal(t, time.Minute, rle.RetryAfter)
}
