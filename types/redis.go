package types

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeu5/taxi-rl/rl"
	"k8s.io/klog/v2"
)

const redisBatch = 100

// RedisRecorder is an analyzer that pushes the statistics of every episode
// to the list <prefix>:<experiment>:<run>, batched through a pipeline
type RedisRecorder struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration

	pending map[string][]interface{}
	pushed  int
	err     error
}

var _ Analyzer = &RedisRecorder{}

func NewRedisRecorder(addr, prefix string) *RedisRecorder {
	return &RedisRecorder{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
		prefix:  prefix,
		timeout: 2 * time.Second,
		pending: make(map[string][]interface{}),
	}
}

// Key of the list holding the episodes of one run of an experiment
func (r *RedisRecorder) Key(experiment string, run int) string {
	return fmt.Sprintf("%s:%s:%d", r.prefix, experiment, run)
}

// Ping checks that the server is reachable
func (r *RedisRecorder) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRecorder) Analyze(run int, experiment string, stats *rl.EpisodeStats) {
	if r.err != nil {
		return
	}
	s := *stats
	s.Trace = nil
	bs, err := json.Marshal(s)
	if err != nil {
		r.err = err
		return
	}
	key := r.Key(experiment, run)
	r.pending[key] = append(r.pending[key], string(bs))
	if len(r.pending[key]) >= redisBatch {
		r.flush()
	}
}

func (r *RedisRecorder) flush() {
	if len(r.pending) == 0 || r.err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	pipe := r.client.Pipeline()
	count := 0
	for key, values := range r.pending {
		pipe.RPush(ctx, key, values...)
		count += len(values)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		klog.ErrorS(err, "Failed to record episodes in redis", "episodes", count)
		r.err = err
		return
	}
	r.pushed += count
	r.pending = make(map[string][]interface{})
}

// DataSet flushes the pending episodes and returns the number recorded
func (r *RedisRecorder) DataSet() DataSet {
	r.flush()
	return r.pushed
}

// Err returns the first error encountered while recording
func (r *RedisRecorder) Err() error {
	return r.err
}

func (r *RedisRecorder) Reset() {
	r.pending = make(map[string][]interface{})
	r.pushed = 0
}

func (r *RedisRecorder) Close() error {
	r.flush()
	return r.client.Close()
}
