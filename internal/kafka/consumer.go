package kafka

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r          messageReader
	workers    int
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewConsumer(brokers []string, group string, topics []string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers)
}

func newConsumer(r messageReader, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, minBackoff: 200 * time.Millisecond, maxBackoff: 5 * time.Second}
}

// Start fetches messages and hands them to the workers until ctx is done.
// Every partition is owned by one worker, so its messages are handled and
// committed in offset order. A failing message is retried until it succeeds;
// nothing after it on the same partition is committed before that.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	g, gctx := errgroup.WithContext(ctx)
	queues := make([]chan kafka.Message, c.workers)
	for i := range queues {
		queues[i] = make(chan kafka.Message, 4)
	}

	for _, q := range queues {
		g.Go(func() error {
			for m := range q {
				if !c.handle(gctx, h, m) {
					return nil
				}
				if err := c.r.CommitMessages(gctx, m); err != nil && gctx.Err() == nil {
					slog.Warn("commit failed", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		for {
			m, err := c.r.FetchMessage(gctx)
			if err != nil {
				// kecilkan noise saat shutdown
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			select {
			case queues[workerFor(m, c.workers)] <- m:
			case <-gctx.Done():
				return nil
			}
		}
	})

	return g.Wait()
}

// handle runs h until it succeeds. It reports false when ctx ended first.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) bool {
	backoff := c.minBackoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		slog.Warn("worker error, retrying",
			"topic", m.Topic, "partition", m.Partition, "offset", m.Offset,
			"attempt", attempt, "backoff", backoff, "error", err)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
		if backoff *= 2; backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func workerFor(m kafka.Message, workers int) int {
	h := fnv.New32a()
	h.Write([]byte(m.Topic))
	h.Write([]byte(strconv.Itoa(m.Partition)))
	return int(h.Sum32() % uint32(workers))
}
