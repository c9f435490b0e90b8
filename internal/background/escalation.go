package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/oryxcrm/branchgate/internal/models"
)

// UnnotifiedLister pages through escalation-worthy attempts that have not been
// notified yet
type UnnotifiedLister interface {
	ListUnnotified(ctx context.Context, reasons []string, limit int) ([]*models.UnauthorizedAttempt, error)
}

// Dispatcher delivers one escalation notification
type Dispatcher interface {
	Dispatch(ctx context.Context, attempt *models.UnauthorizedAttempt) error
}

const redeliveryBatchSize = 50

// RedeliveryManager periodically re-dispatches escalations whose original
// fire-and-forget delivery failed, for example during a mail outage or a
// crash between insert and send. Dispatch marks attempts notified, so a
// successful redelivery drops them from the next sweep.
type RedeliveryManager struct {
	attempts   UnnotifiedLister
	dispatcher Dispatcher
	logger     *slog.Logger
	interval   time.Duration
	stopCh     chan struct{}
}

// NewRedeliveryManager creates a new redelivery manager
func NewRedeliveryManager(
	attempts UnnotifiedLister,
	dispatcher Dispatcher,
	logger *slog.Logger,
	interval time.Duration,
) *RedeliveryManager {
	return &RedeliveryManager{
		attempts:   attempts,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the periodic redelivery sweep
func (rm *RedeliveryManager) Start(ctx context.Context) {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	// Run immediately on startup to drain anything left from a previous run
	rm.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			rm.runSweep(ctx)
		case <-rm.stopCh:
			rm.logger.Info("escalation redelivery stopped")
			return
		case <-ctx.Done():
			rm.logger.Info("escalation redelivery context cancelled")
			return
		}
	}
}

func (rm *RedeliveryManager) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pending, err := rm.attempts.ListUnnotified(sweepCtx, models.EscalationReasons(), redeliveryBatchSize)
	if err != nil {
		rm.logger.Error("failed to list unnotified attempts", slog.Any("error", err))
		return
	}
	if len(pending) == 0 {
		return
	}

	delivered := 0
	for _, attempt := range pending {
		if err := rm.dispatcher.Dispatch(sweepCtx, attempt); err != nil {
			rm.logger.Error("escalation redelivery failed",
				slog.String("attempt_id", attempt.ID.String()),
				slog.Any("error", err))
			continue
		}
		delivered++
	}

	rm.logger.Info("escalation redelivery sweep completed",
		slog.Int("pending", len(pending)),
		slog.Int("delivered", delivered))
}

// Stop signals the redelivery manager to stop
func (rm *RedeliveryManager) Stop() {
	close(rm.stopCh)
}
