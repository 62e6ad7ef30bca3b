//go:build integration

package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tracekeeper/internal/migrator/lock"
	"tracekeeper/pkg/platform/sentinel"
	"tracekeeper/pkg/testutil/containers"
)

type RedisLockSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	lock  *lock.RedisLock
}

func TestRedisLockSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockSuite))
}

func (s *RedisLockSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.lock = lock.NewRedis(s.redis.Client)
}

func (s *RedisLockSuite) SetupTest() {
	s.Require().NoError(s.redis.ClearLeases(context.Background()))
}

func (s *RedisLockSuite) TestExclusiveLease() {
	ctx := context.Background()

	held, err := s.lock.Acquire(ctx, "migration:1.32", time.Minute)
	s.Require().NoError(err)

	_, err = s.lock.Acquire(ctx, "migration:1.32", time.Minute)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	s.Require().NoError(held.Release(ctx))
	held, err = s.lock.Acquire(ctx, "migration:1.32", time.Minute)
	s.Require().NoError(err)
	s.NoError(held.Release(ctx))
}

func (s *RedisLockSuite) TestLeaseExpires() {
	ctx := context.Background()

	stale, err := s.lock.Acquire(ctx, "migration:1.33", 200*time.Millisecond)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		_, err := s.lock.Acquire(ctx, "migration:1.33", time.Minute)
		return err == nil
	}, 5*time.Second, 100*time.Millisecond)

	s.Require().NoError(stale.Release(ctx))
	_, err = s.lock.Acquire(ctx, "migration:1.33", time.Minute)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed, "stale holder must not release the new lease")
	s.ErrorIs(stale.Extend(ctx, time.Minute), sentinel.ErrNotFound, "stale holder must not extend the new lease")
}

func (s *RedisLockSuite) TestExtendOutlivesFirstTTL() {
	ctx := context.Background()

	held, err := s.lock.Acquire(ctx, "migration:1.34", 300*time.Millisecond)
	s.Require().NoError(err)

	for range 4 {
		time.Sleep(150 * time.Millisecond)
		s.Require().NoError(held.Extend(ctx, 300*time.Millisecond))
	}

	_, err = s.lock.Acquire(ctx, "migration:1.34", time.Minute)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed, "lease still held well past its first ttl")
	s.NoError(held.Release(ctx))
}
