package registration

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"eventify-api/domain"
)

// Queue is the repair-queue side of the storage layer.
type Queue interface {
	DequeueRepair(ctx context.Context) (*domain.QueuedRepair, error)
	DeleteRepair(ctx context.Context, messageID, popReceipt string) error
}

// Reconciler drains the repair queue, re-applying user-side registration
// writes until the membership rows agree with the authoritative attendee
// lists again. Repairs are idempotent, so redelivery after a crash between
// apply and delete is harmless.
type Reconciler struct {
	store    Store
	queue    Queue
	logger   *log.Logger
	interval time.Duration
}

// NewReconciler creates a Reconciler polling at the given interval.
func NewReconciler(store Store, queue Queue, logger *log.Logger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Reconciler{store: store, queue: queue, logger: logger, interval: interval}
}

// Run processes repair messages until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.WithError(err).Error("repair queue receive failed")
		}
		if processed || err != nil {
			// Back off only when idle or failing.
			if err == nil {
				continue
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
		}
	}
}

// RunOnce handles at most one repair message. It reports whether a message
// was processed.
func (r *Reconciler) RunOnce(ctx context.Context) (bool, error) {
	msg, err := r.queue.DequeueRepair(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	fields := log.Fields{"user": msg.UserID, "event": msg.EventID, "op": string(msg.Op)}
	if err := applyRepair(ctx, r.store, msg.Repair); err != nil {
		// Leave the message on the queue; visibility timeout will redeliver.
		r.logger.WithFields(fields).WithError(err).Error("repair apply failed")
		return true, nil
	}
	if err := r.queue.DeleteRepair(ctx, msg.MessageID, msg.PopReceipt); err != nil {
		r.logger.WithFields(fields).WithError(err).Error("repair message delete failed")
		return true, nil
	}
	r.logger.WithFields(fields).Info("registration repaired")
	return true, nil
}
