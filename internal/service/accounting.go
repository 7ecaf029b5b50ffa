package service

import (
	"context"
	"time"

	"github.com/darkpool-labs/relaygate/internal/model"
	"github.com/darkpool-labs/relaygate/internal/pkg/logger"
)

// Ledger persists settlement and sponsorship accounting rows.
type Ledger interface {
	InsertMatch(ctx context.Context, rec *model.MatchRecord) error
	InsertSponsorship(ctx context.Context, rec *model.SponsorshipRecord) error
}

// AccountingService finalizes accounting in the background path. All
// failures are logged and swallowed: they must never affect a response
// that was already sent. A nil ledger disables persistence.
type AccountingService struct {
	ledger Ledger
}

func NewAccountingService(ledger Ledger) *AccountingService {
	return &AccountingService{ledger: ledger}
}

func (s *AccountingService) RecordMatch(
	ctx context.Context,
	caller, requestID, endpoint, sdkVersion string,
	result *model.ExternalMatchResult,
	settled, sponsored bool,
) {
	if s.ledger == nil {
		return
	}
	rec := &model.MatchRecord{
		RequestID:   requestID,
		Key:         caller,
		Endpoint:    endpoint,
		BaseMint:    result.BaseMint,
		QuoteMint:   result.QuoteMint,
		Direction:   result.Direction,
		BaseAmount:  result.BaseAmount.String(),
		QuoteAmount: result.QuoteAmount.String(),
		Settled:     settled,
		Sponsored:   sponsored,
		SDKVersion:  sdkVersion,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.ledger.InsertMatch(ctx, rec); err != nil {
		logger.Error("failed to record match", "request_id", requestID, "error", err)
	}
}

func (s *AccountingService) RecordSettledSponsorship(
	ctx context.Context,
	caller, requestID string,
	info *model.GasSponsorshipInfo,
) {
	if s.ledger == nil {
		return
	}
	refundAddr := ""
	if info.RefundAddress != nil {
		refundAddr = *info.RefundAddress
	}
	rec := &model.SponsorshipRecord{
		RequestID:       requestID,
		Key:             caller,
		RefundAmount:    info.RefundAmount.String(),
		RefundNativeEth: info.RefundNativeEth,
		RefundAddress:   refundAddr,
		SettledAt:       time.Now().UTC(),
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.ledger.InsertSponsorship(ctx, rec); err != nil {
		logger.Error("failed to record settled sponsorship", "request_id", requestID, "error", err)
	}
}
