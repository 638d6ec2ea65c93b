package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"gopherai-search/internal/model"
	"gopherai-search/internal/platform/rabbitmq"
)

// ArchiveApplier replays archive events into durable storage.
type ArchiveApplier interface {
	ApplyArchiveEvent(ctx context.Context, ev model.ArchiveEvent) error
}

// ArchiveWorker drains the archive queue into the durable store.
type ArchiveWorker struct {
	conn      *amqp.Connection
	applier   ArchiveApplier
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewArchiveWorker(conn *amqp.Connection, applier ArchiveApplier, queueName string, logger *zap.Logger) *ArchiveWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveWorker{
		conn:      conn,
		applier:   applier,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *ArchiveWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	// events of one conversation must apply in order
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					w.logger.Error("archive event dropped", zap.String("type", d.Type), zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("archive worker started", zap.String("queue", w.queueName))
	return nil
}

func (w *ArchiveWorker) handle(ctx context.Context, body []byte) error {
	var ev model.ArchiveEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode archive event failed: %w", err)
	}
	if err := w.applier.ApplyArchiveEvent(ctx, ev); err != nil {
		return fmt.Errorf("apply archive event %s failed: %w", ev.Kind, err)
	}
	w.logger.Debug("archive event applied",
		zap.String("kind", ev.Kind),
		zap.String("conversation_id", ev.ConversationID),
	)
	return nil
}

func (w *ArchiveWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
