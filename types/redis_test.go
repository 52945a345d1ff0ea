package types

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/zeu5/taxi-rl/rl"
)

func TestRedisRecorder(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	prefix := "taxi-rl-test-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	r := NewRedisRecorder(addr, prefix)
	defer r.Close()
	ctx := context.Background()
	if err := r.Ping(ctx); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	for i := 0; i < 150; i++ {
		r.Analyze(0, "taxi", &rl.EpisodeStats{Episode: i, Steps: i + 1})
	}
	if count := r.DataSet().(int); count != 150 {
		t.Errorf("expected 150 recorded episodes, got %d", count)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	key := r.Key("taxi", 0)
	defer r.client.Del(ctx, key)
	n, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if n != 150 {
		t.Errorf("expected 150 entries in %s, got %d", key, n)
	}
}

func TestRedisRecorderUnreachable(t *testing.T) {
	r := NewRedisRecorder("127.0.0.1:1", "unreachable")
	r.timeout = 200 * time.Millisecond
	defer r.Close()
	r.Analyze(0, "taxi", &rl.EpisodeStats{})
	r.DataSet()
	if r.Err() == nil {
		t.Errorf("expected an error recording to an unreachable server")
	}
}
