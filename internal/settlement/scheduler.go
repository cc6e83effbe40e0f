package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/vizion-gateway/vizion_gateway/internal/ledger"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

// Scheduler periodically sweeps merchant wallets that are due for automatic
// settlement. Each due wallet is settled through the same engine entry point
// manual settlement uses, so the per-merchant serialization in the engine
// protects against races between the sweep and manual calls.
type Scheduler struct {
	engine   *ledger.Engine
	wallets  wallet.Repository
	logger   *slog.Logger
	interval time.Duration
	clock    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler builds a settlement scheduler. Interval defaults to one hour.
func NewScheduler(engine *ledger.Engine, wallets wallet.Repository, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		engine:   engine,
		wallets:  wallets,
		logger:   logger,
		interval: interval,
		clock:    time.Now,
	}
}

// Start launches the sweep loop. Call Stop to terminate it.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Sweep settles every merchant wallet whose next settlement is due.
// Per-wallet failures are logged and do not abort the rest of the sweep.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.clock().UTC()
	due, err := s.wallets.ListDueForSettlement(ctx, now)
	if err != nil {
		s.logger.Error("list wallets due for settlement", "error", err)
		return
	}

	settled := 0
	for _, w := range due {
		if ctx.Err() != nil {
			return
		}
		txn, err := s.engine.ProcessSettlement(ctx, w.OwnerID)
		if err != nil {
			s.logger.Error("settle merchant wallet", "merchant_id", w.OwnerID, "error", err)
			continue
		}
		if txn != nil {
			settled++
			s.logger.Info("merchant wallet settled",
				"merchant_id", w.OwnerID,
				"transaction_id", txn.ID,
				"currency", string(txn.Currency),
				"amount", txn.Amount.String(),
			)
		}
	}

	if len(due) > 0 {
		s.logger.Info("settlement sweep complete", "due", len(due), "settled", settled)
	}
}
