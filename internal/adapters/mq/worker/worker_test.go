package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	queue "github.com/okian/promille/internal/adapters/mq/queue"
	worker "github.com/okian/promille/internal/adapters/mq/worker"
	model "github.com/okian/promille/internal/domain/model"
	logging "github.com/okian/promille/pkg/logger"
)

type mockQueue struct {
	eventChan chan queue.Event
	once      sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{eventChan: make(chan queue.Event, 100)}
}

func (mq *mockQueue) Dequeue(_ context.Context) <-chan queue.Event {
	return mq.eventChan
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.eventChan) })
	return nil
}

func (mq *mockQueue) addEvent(e queue.Event) { //nolint:gocritic // hugeParam: sent by value over the channel
	mq.eventChan <- e
}

type mockAppender struct {
	mu      sync.Mutex
	drinks  map[string][]string
	errors  map[string]error
	latency time.Duration
}

func newMockAppender() *mockAppender {
	return &mockAppender{drinks: make(map[string][]string), errors: make(map[string]error)}
}

func (ma *mockAppender) AppendDrink(_ context.Context, _, personID string, ev model.DrinkEvent) error {
	if ma.latency > 0 {
		time.Sleep(ma.latency)
	}
	ma.mu.Lock()
	defer ma.mu.Unlock()
	if err, ok := ma.errors[personID]; ok {
		return err
	}
	ma.drinks[personID] = append(ma.drinks[personID], ev.ID)
	return nil
}

func (ma *mockAppender) setError(personID string, err error) {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	ma.errors[personID] = err
}

func (ma *mockAppender) count(personID string) int {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	return len(ma.drinks[personID])
}

func logged(personID, drinkID string) queue.Event {
	return model.DrinkLogged{
		SessionID: "s1",
		PersonID:  personID,
		Drink:     model.DrinkEvent{ID: drinkID, VolumeML: 330, StrengthPct: 5, ConsumedAt: time.Now()},
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		appender := newMockAppender()

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(q, appender,
				worker.WithName("test-worker"),
				worker.WithLogger(logging.Named("custom")),
			)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
				convey.So(w.Processed(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When running a worker", func() {
			var (
				failMu sync.Mutex
				failed []string
			)
			w := worker.NewInMemoryWorker(q, appender, worker.WithFailureHandler(
				func(_ context.Context, e worker.Event, _ error) {
					failMu.Lock()
					defer failMu.Unlock()
					failed = append(failed, e.Drink.ID)
				}))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			convey.Convey("And a drink arrives", func() {
				q.addEvent(logged("p1", "d1"))
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then it is appended", func() {
					convey.So(appender.count("p1"), convey.ShouldEqual, 1)
					convey.So(w.Processed(), convey.ShouldEqual, 1)
				})
			})

			convey.Convey("And the append fails", func() {
				appender.setError("p2", errors.New("store down"))
				q.addEvent(logged("p2", "d2"))
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then the failure handler sees the drink", func() {
					failMu.Lock()
					defer failMu.Unlock()
					convey.So(failed, convey.ShouldResemble, []string{"d2"})
					convey.So(w.Processed(), convey.ShouldEqual, 0)
				})
			})

			convey.Convey("And it is shut down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				convey.Convey("Then it stops gracefully, twice", func() {
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the context is cancelled", func() {
			w := worker.NewInMemoryWorker(q, appender)
			ctx, cancel := context.WithCancel(context.Background())
			go w.Run(ctx)
			cancel()

			convey.Convey("Then Shutdown returns promptly", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a worker pool over a real queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		appender := newMockAppender()
		ctx := context.Background()

		convey.Convey("When drinks are enqueued and the pool shuts down", func() {
			pool := worker.NewPool(4, q, appender)
			pool.Start(ctx)
			convey.So(pool.Size(), convey.ShouldEqual, 4)
			for i := 0; i < 200; i++ {
				convey.So(q.Enqueue(ctx, logged(fmt.Sprintf("p%d", i%5), fmt.Sprintf("d%d", i))), convey.ShouldBeNil)
			}
			err := pool.Shutdown(ctx)

			convey.Convey("Then every pending drink is drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				total := 0
				for i := 0; i < 5; i++ {
					total += appender.count(fmt.Sprintf("p%d", i))
				}
				convey.So(total, convey.ShouldEqual, 200)
				convey.So(pool.Processed(), convey.ShouldEqual, 200)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the drain outlives the deadline", func() {
			appender.latency = 50 * time.Millisecond
			pool := worker.NewPool(1, q, appender)
			pool.Start(ctx)
			for i := 0; i < 100; i++ {
				_ = q.Enqueue(ctx, logged("slow", fmt.Sprintf("d%d", i)))
			}
			shutdownCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then shutdown reports the timeout", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})
}

func TestAppenderFunc(t *testing.T) {
	convey.Convey("Given an appender func", t, func() {
		var got string
		f := worker.AppenderFunc(func(_ context.Context, sessionID, personID string, ev model.DrinkEvent) error {
			got = sessionID + "/" + personID + "/" + ev.ID
			return nil
		})

		convey.Convey("Then it forwards the call", func() {
			convey.So(f.AppendDrink(context.Background(), "s", "p", model.DrinkEvent{ID: "d"}), convey.ShouldBeNil)
			convey.So(got, convey.ShouldEqual, "s/p/d")
		})
	})
}
