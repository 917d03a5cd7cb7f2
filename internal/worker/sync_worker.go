// Package worker runs the sheets mirror: it consumes ledger events from the
// broker and keeps the spreadsheet in step with the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"casheye/internal/amqp"
	"casheye/internal/log"
)

type (
	// Consumer delivers ledger events until ctx is cancelled.
	Consumer interface {
		ConsumeLedgerAppended(ctx context.Context, handler amqp.Handler) error
	}

	// Mirror applies ledger events to the spreadsheet and runs the periodic
	// resync. *services.SheetsSync implements it.
	Mirror interface {
		HandleLedgerAppended(ctx context.Context, msg *amqp.LedgerAppendedMessage) error
		Start(ctx context.Context) error
		Stop(ctx context.Context) error
	}
)

// SyncWorker ties a Consumer to a Mirror.
type SyncWorker struct {
	consumer    Consumer
	mirror      Mirror
	stopTimeout time.Duration
	logger      *log.Logger
}

func NewSyncWorker(consumer Consumer, mirror Mirror, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &SyncWorker{
		consumer:    consumer,
		mirror:      mirror,
		stopTimeout: 30 * time.Second,
		logger:      logger.WithComponent(log.ComponentWorker),
	}
}

// Run starts the resync loop and consumes events until ctx is cancelled or
// the consumer fails. A cancelled context is a clean exit.
func (w *SyncWorker) Run(ctx context.Context) error {
	if w.consumer == nil || w.mirror == nil {
		return fmt.Errorf("sync worker not properly initialized")
	}
	if err := w.mirror.Start(ctx); err != nil {
		return fmt.Errorf("start sheets sync: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.consumer.ConsumeLedgerAppended(gctx, w.handle)
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), w.stopTimeout)
		defer cancel()
		return w.mirror.Stop(stopCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *SyncWorker) handle(ctx context.Context, msg *amqp.LedgerAppendedMessage) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		"source", msg.Source,
		"lines", len(msg.Lines))
	if err := w.mirror.HandleLedgerAppended(ctx, msg); err != nil {
		return fmt.Errorf("mirror ledger event: %w", err)
	}
	return nil
}
