package keylock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/barsync/internal/config"
	"github.com/rickgao/barsync/internal/model"
)

var (
	keyA = model.SeriesKey{Symbol: "EUR_USD", Resolution: "M1"}
	keyB = model.SeriesKey{Symbol: "USD_JPY", Resolution: "M1"}
)

// exercise runs n goroutines that each hold key briefly and reports the
// highest number of concurrent holders observed.
func exercise(t *testing.T, l Locker, key model.SeriesKey, n int) int32 {
	t.Helper()
	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		peak    atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), key)
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			cur := holders.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			holders.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	return peak.Load()
}

func TestLocal_MutualExclusion(t *testing.T) {
	l := NewLocal()
	if peak := exercise(t, l, keyA, 20); peak != 1 {
		t.Errorf("peak holders = %d, want 1", peak)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d after release, want 0", l.Len())
	}
}

func TestLocal_DistinctKeysIndependent(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, keyA)
	if err != nil {
		t.Fatalf("Lock(A) error = %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, keyB)
	if err != nil {
		t.Fatalf("Lock(B) while A held error = %v", err)
	}
	unlockB()
}

func TestLocal_ContextCancel(t *testing.T) {
	l := NewLocal()
	unlock, _ := l.Lock(context.Background(), keyA)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, keyA); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Lock() error = %v, want DeadlineExceeded", err)
	}

	unlock()
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after waiter gave up and holder released", l.Len())
	}
}

func TestLocal_UnlockTwice(t *testing.T) {
	l := NewLocal()
	unlock, _ := l.Lock(context.Background(), keyA)
	unlock()
	unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	again, err := l.Lock(ctx, keyA)
	if err != nil {
		t.Fatalf("Lock() after double unlock error = %v", err)
	}
	again()
}

func TestOpen(t *testing.T) {
	l, err := Open(context.Background(), config.LockConfig{Driver: config.LockLocal}, nil)
	if err != nil {
		t.Fatalf("Open(local) error = %v", err)
	}
	if _, ok := l.(*Local); !ok {
		t.Errorf("Open(local) = %T, want *Local", l)
	}

	_, err = Open(context.Background(), config.LockConfig{Driver: "zookeeper"}, nil)
	if !errors.Is(err, model.ErrConfig) {
		t.Errorf("Open(unknown) error = %v, want ErrConfig", err)
	}
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("BARSYNC_REDIS_ADDR")
	if addr == "" {
		t.Skip("BARSYNC_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	l := NewRedis(client, 5*time.Second, 5*time.Millisecond, nil)
	key := model.SeriesKey{Symbol: "LOCKTEST", Resolution: time.Now().Format("150405.000000")}
	defer client.Del(context.Background(), KeyPrefix+key.String())

	t.Run("mutual exclusion", func(t *testing.T) {
		if peak := exercise(t, l, key, 10); peak != 1 {
			t.Errorf("peak holders = %d, want 1", peak)
		}
	})

	t.Run("released key is gone", func(t *testing.T) {
		unlock, err := l.Lock(context.Background(), key)
		if err != nil {
			t.Fatalf("Lock() error = %v", err)
		}
		unlock()
		n, err := client.Exists(context.Background(), KeyPrefix+key.String()).Result()
		if err != nil || n != 0 {
			t.Errorf("Exists() = %d, %v, want 0", n, err)
		}
	})

	t.Run("foreign token survives unlock", func(t *testing.T) {
		unlock, _ := l.Lock(context.Background(), key)
		// Simulate expiry and takeover by another holder.
		client.Set(context.Background(), KeyPrefix+key.String(), "other", time.Second)
		unlock()
		got, _ := client.Get(context.Background(), KeyPrefix+key.String()).Result()
		if got != "other" {
			t.Errorf("lock value = %q, want other holder's token kept", got)
		}
		client.Del(context.Background(), KeyPrefix+key.String())
	})

	t.Run("context cancel", func(t *testing.T) {
		unlock, _ := l.Lock(context.Background(), key)
		defer unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		if _, err := l.Lock(ctx, key); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Lock() error = %v, want DeadlineExceeded", err)
		}
	})
}
