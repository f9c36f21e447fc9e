package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"stash/internal/metrics"
)

const popTimeout = 5 * time.Second

// Redis is a list-backed queue shared by every process pointing at the same key.
type Redis struct {
	client  *redis.Client
	key     string
	workers int
	log     logrus.FieldLogger
}

func NewRedis(redisURL, key string, workers int, log logrus.FieldLogger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = popTimeout + 2*time.Second
	opts.WriteTimeout = 3 * time.Second
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if workers <= 0 {
		workers = 1
	}
	return &Redis{client: client, key: key, workers: workers, log: log}, nil
}

func (q *Redis) Enqueue(ctx context.Context, job Job) error {
	if job.CardID == "" {
		return errors.New("job without card id")
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	metrics.QueueJobs.WithLabelValues("redis", "enqueued").Inc()
	return nil
}

func (q *Redis) Run(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx, h)
		}()
	}
	wg.Wait()
	return q.client.Close()
}

func (q *Redis) work(ctx context.Context, h Handler) {
	for ctx.Err() == nil {
		vals, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if q.log != nil {
				q.log.WithError(err).Warn("queue pop failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		// BRPOP answers [key, value]
		if len(vals) != 2 {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
			if q.log != nil {
				q.log.WithError(err).Warn("dropping malformed job")
			}
			continue
		}
		runJob(ctx, "redis", h, job, q.log)
	}
}
