package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithAuthRefresh_SucceedsAfterRefresh(t *testing.T) {
	var calls, refreshes int
	val, err := WithAuthRefresh(context.Background(),
		func(context.Context) error { refreshes++; return nil },
		func(context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, NewAuthExpiredError(errors.New("expired"), 401)
			}
			return 7, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 7, val)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, refreshes)
}

func TestWithAuthRefresh_SecondFailureIsFatal(t *testing.T) {
	var calls, refreshes int
	_, err := WithAuthRefresh(context.Background(),
		func(context.Context) error { refreshes++; return nil },
		func(context.Context) (int, error) {
			calls++
			return 0, NewAuthExpiredError(errors.New("expired"), 403)
		})

	require.Error(t, err)
	assert.True(t, IsAuthExpired(err))
	assert.Equal(t, 2, calls, "retries exactly once")
	assert.Equal(t, 1, refreshes)
}

func TestWithAuthRefresh_OtherErrorsPassThrough(t *testing.T) {
	var refreshes int
	_, err := WithAuthRefresh(context.Background(),
		func(context.Context) error { refreshes++; return nil },
		func(context.Context) (string, error) { return "", errors.New("boom") })

	require.EqualError(t, err, "boom")
	assert.Zero(t, refreshes)
}

func TestWithAuthRefresh_RefreshFails(t *testing.T) {
	_, err := WithAuthRefresh(context.Background(),
		func(context.Context) error { return errors.New("refresh denied") },
		func(context.Context) (string, error) {
			return "", NewAuthExpiredError(errors.New("expired"), 401)
		})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh credentials")
}
