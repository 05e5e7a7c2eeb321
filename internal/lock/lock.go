package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	releaseScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	renewScript   = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

var ErrLeaseHeld = errors.New("lease is held by another instance")

// Lease makes one process the only writer of the custody state. The custodian
// serializes operations in memory, so two servers must never run against the
// same configuration at once.
type Lease struct {
	client redis.UniversalClient
	key    string
	holder string
	ttl    time.Duration
}

func NewLease(client redis.UniversalClient, key, holder string, ttl time.Duration) *Lease {
	return &Lease{client: client, key: key, holder: holder, ttl: ttl}
}

func (l *Lease) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.holder, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLeaseHeld, l.key)
	}
	return nil
}

// WaitAcquire retries Acquire with exponential backoff until maxWait elapses.
func (l *Lease) WaitAcquire(ctx context.Context, maxWait time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = maxWait

	err := backoff.Retry(func() error {
		err := l.Acquire(ctx)
		if err != nil && !errors.Is(err, ErrLeaseHeld) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
	if errors.Is(err, ErrLeaseHeld) {
		return fmt.Errorf("could not acquire lease %s within %s: %w", l.key, maxWait, err)
	}
	return err
}

func (l *Lease) Renew(ctx context.Context) error {
	result, err := l.client.Eval(ctx, renewScript, []string{l.key}, l.holder, fmt.Sprintf("%d", l.ttl.Milliseconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lease %s expired or is held by another instance", l.key)
	}
	return nil
}

func (l *Lease) Release(ctx context.Context) error {
	result, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.holder).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lease %s was not held by %s", l.key, l.holder)
	}
	return nil
}

// Keep renews the lease every ttl/3 until ctx is done. It calls lost and
// returns when a renewal fails.
func (l *Lease) Keep(ctx context.Context, lost func(error)) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Renew(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				logrus.WithFields(logrus.Fields{"key": l.key, "holder": l.holder}).WithError(err).Error("custody lease lost")
				lost(err)
				return
			}
		}
	}
}
