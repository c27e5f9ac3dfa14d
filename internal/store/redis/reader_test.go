package redis

import (
	"bytes"
	"context"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trendsignal/internal/logger"
	"trendsignal/internal/model"
)

func TestUnclaimed(t *testing.T) {
	ids := []string{"1-0", "2-0", "3-0", "4-0"}
	claimed := []goredis.XMessage{{ID: "1-0"}, {ID: "3-0"}}

	if got := unclaimed(ids, claimed); !reflect.DeepEqual(got, []string{"2-0", "4-0"}) {
		t.Errorf("unclaimed = %v, want [2-0 4-0]", got)
	}
	if got := unclaimed(ids[:1], claimed); got != nil {
		t.Errorf("expected nothing missing, got %v", got)
	}
}

func TestAfter(t *testing.T) {
	if got := after("1717400100000-3"); got != "(1717400100000-3" {
		t.Errorf("after = %s", got)
	}
}

// unreachable returns a client pointed at a closed port.
func unreachable(t *testing.T) *goredis.Client {
	t.Helper()
	c := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConsumer_AckFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsumer(unreachable(t), ConsumerConfig{}, logger.New(&buf, "test", slog.LevelDebug))

	c.ack(context.Background(), "bars:1m:NIFTY", "1-0")
	if !strings.Contains(buf.String(), "xack failed") {
		t.Fatalf("expected xack failure in log, got %q", buf.String())
	}
}

func TestConsumer_RecoverPendingReturnsOnError(t *testing.T) {
	c := NewConsumer(unreachable(t), ConsumerConfig{}, logger.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.recoverPending(ctx, "bars:1m:NIFTY", make(chan model.Bar)) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error from an unreachable server")
		}
	case <-ctx.Done():
		t.Fatal("recoverPending did not return")
	}
}
