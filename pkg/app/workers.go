package app

import (
	"context"
	"dashcollab/pkg/kafka"
	"dashcollab/pkg/logger"
	"errors"
	"sync"
)

// ConsumerWorker runs a Kafka consumer loop as an application Worker.
type ConsumerWorker struct {
	consumer *kafka.Consumer
	log      *logger.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewConsumerWorker(consumer *kafka.Consumer, log *logger.Logger) *ConsumerWorker {
	return &ConsumerWorker{consumer: consumer, log: log}
}

func (w *ConsumerWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error("Kafka consumer stopped unexpectedly", "error", err)
		}
	}()
}

func (w *ConsumerWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if err := w.consumer.Close(); err != nil {
		w.log.Error("Failed to close Kafka consumer", "error", err)
	}
}
