package bomimport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"github.com/AnimaI/SMD-Manager/utils"
)

const (
	DefaultLockTTL    = 2 * time.Minute
	// DefaultLockWait bounds how long an import queues behind another import
	// of the same device before failing with ErrDeviceBusy.
	DefaultLockWait   = 2 * time.Minute
	lockRetryInterval = 500 * time.Millisecond
	deviceLockPrefix  = "bom_import:"
)

var ErrDeviceBusy = errors.New("another import for this device is still running")

// DeviceLocker serializes BOM replacement per device. The returned function
// releases the lock.
type DeviceLocker interface {
	Lock(ctx context.Context, device string) (func(), error)
}

func deviceLockKey(device string) string {
	return deviceLockPrefix + strings.ToLower(strings.TrimSpace(device))
}

// RedisDeviceLocker holds the lock in redis so that replicas sharing the
// database do not interleave imports for the same device. The lock is
// refreshed in the background until released.
type RedisDeviceLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	logger logrus.FieldLogger
}

func NewRedisDeviceLocker(client *redislock.Client, ttl time.Duration, logger logrus.FieldLogger) *RedisDeviceLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisDeviceLocker{client: client, ttl: ttl, wait: DefaultLockWait, logger: logger}
}

func (l *RedisDeviceLocker) Lock(ctx context.Context, device string) (func(), error) {
	key := deviceLockKey(device)
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	lock, err := l.client.Obtain(waitCtx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(lockRetryInterval),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceBusy, device)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain device lock: %w", err)
	}

	fields := logrus.Fields{"module": "bomimport", "lock": key}
	if trackingID, ok := utils.GetTrackingIdFromContext(ctx); ok {
		fields["tracking_id"] = trackingID
	}

	done := make(chan struct{})
	go l.keepAlive(lock, fields, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.logger.WithFields(fields).Warn("failed to release redis lock: " + err.Error())
			}
		})
	}, nil
}

func (l *RedisDeviceLocker) keepAlive(lock *redislock.Lock, fields logrus.Fields, done <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := lock.Refresh(context.Background(), l.ttl, nil); err != nil {
				l.logger.WithFields(fields).Warn("failed to refresh redis lock: " + err.Error())
				return
			}
		}
	}
}

// LocalDeviceLocker is the in-process fallback used when redis is not
// configured.
type LocalDeviceLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	wait  time.Duration
}

func NewLocalDeviceLocker() *LocalDeviceLocker {
	return &LocalDeviceLocker{slots: make(map[string]chan struct{}), wait: DefaultLockWait}
}

func (l *LocalDeviceLocker) Lock(ctx context.Context, device string) (func(), error) {
	key := deviceLockKey(device)

	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case slot <- struct{}{}:
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", ErrDeviceBusy, device)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s", ErrDeviceBusy, device)
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}
