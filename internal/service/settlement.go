package service

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/darkpool-labs/relaygate/internal/config"
	"github.com/darkpool-labs/relaygate/internal/model"
	"github.com/darkpool-labs/relaygate/internal/pkg/logger"
)

// NullifierChecker answers whether a match nullifier has been spent
// on-chain, i.e. whether the bundle's settlement landed.
type NullifierChecker interface {
	NullifierSpent(ctx context.Context, nullifier common.Hash) (bool, error)
}

// SettlementWatcher polls the chain until a match bundle is observed
// settled or a deadline elapses. It runs strictly after the response has
// been sent; chain errors are treated as "not yet settled" and retried.
type SettlementWatcher struct {
	checker  NullifierChecker
	interval time.Duration
	deadline time.Duration
	clock    clock.Clock
}

func NewSettlementWatcher(checker NullifierChecker, cfg *config.SettlementConfig, clk clock.Clock) *SettlementWatcher {
	if clk == nil {
		clk = clock.New()
	}
	interval := cfg.PollInterval()
	if interval <= 0 {
		interval = time.Second
	}
	deadline := cfg.Deadline()
	if deadline <= 0 {
		deadline = time.Minute
	}
	return &SettlementWatcher{
		checker:  checker,
		interval: interval,
		deadline: deadline,
		clock:    clk,
	}
}

// AwaitSettlement returns true the first time the bundle is observed
// settled, false once the deadline elapses. Deadline expiry is a defined
// outcome, not an error.
func (w *SettlementWatcher) AwaitSettlement(ctx context.Context, bundle *model.MatchBundle) bool {
	nullifier, err := BundleNullifier(bundle)
	if err != nil {
		logger.Warn("cannot derive bundle nullifier, skipping settlement watch", "error", err)
		return false
	}

	deadline := w.clock.After(w.deadline)
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	for {
		settled, err := w.checker.NullifierSpent(ctx, nullifier)
		if err != nil {
			logger.Debug("settlement check failed, retrying", "error", err)
		} else if settled {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			return false
		case <-ticker.C:
		}
	}
}

// BundleNullifier extracts the match nullifier from a bundle's
// settlement calldata: the first static word after the 4-byte selector.
func BundleNullifier(bundle *model.MatchBundle) (common.Hash, error) {
	data, err := hexutil.Decode(bundle.SettlementTx.Data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid settlement calldata: %w", err)
	}
	if len(data) < 36 {
		return common.Hash{}, fmt.Errorf("settlement calldata too short: %d bytes", len(data))
	}
	return common.BytesToHash(data[4:36]), nil
}
