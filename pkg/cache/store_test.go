package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "cbhlc:fees:Grade 1:p1", Key("fees", "Grade 1", "p1"))
	assert.Equal(t, "cbhlc:", Key())
}

func TestStoreWithoutClient(t *testing.T) {
	var s *Store
	var dest map[string]int

	err := s.Get(context.Background(), "k", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, s.Set(context.Background(), "k", 1, time.Minute))
	assert.NoError(t, s.DeleteByPattern(context.Background(), "k*"))

	empty := NewStore(nil)
	err = empty.Get(context.Background(), "k", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
}

func TestRedisLockerRejectsZeroTTL(t *testing.T) {
	l := NewRedisLocker(nil)
	_, err := l.Acquire(context.Background(), "sweep", 0)
	assert.Error(t, err)
}
