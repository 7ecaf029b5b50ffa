package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/darkpool-labs/relaygate/internal/config"
	"github.com/darkpool-labs/relaygate/internal/model"
	"github.com/darkpool-labs/relaygate/internal/pkg/logger"
	"github.com/darkpool-labs/relaygate/internal/repository"
)

// quoteKeyNamespace is the UUIDv5 namespace for quote cache keys.
var quoteKeyNamespace = uuid.MustParse("7a9c1ef0-3d52-4b8a-9f67-2e05c4d81b3a")

// weiPerEth is 1e18, the denominator for wei-to-quote conversions.
var weiPerEth = decimal.New(1, 18)

// GasEstimator supplies the current gas price for refund computation.
type GasEstimator interface {
	GasPriceWei(ctx context.Context) (*big.Int, error)
}

// SponsorshipEngine computes gas refunds and performs the request and
// response rewriting needed to apply or reverse sponsorship. Amount
// rewrites are exact integer arithmetic; applying an in-kind refund and
// later removing it reproduces the original amounts bit-for-bit.
type SponsorshipEngine struct {
	enabled       bool
	sponsorKey    *ecdsa.PrivateKey
	gasUnits      *big.Int
	maxRefundWei  *big.Int
	ethPriceQuote decimal.Decimal
	defaultRefund string
	estimator     GasEstimator
	cache         repository.SponsorshipCache
}

func NewSponsorshipEngine(cfg *config.SponsorshipConfig, estimator GasEstimator, cache repository.SponsorshipCache) (*SponsorshipEngine, error) {
	e := &SponsorshipEngine{
		gasUnits:      new(big.Int).SetUint64(cfg.GasUnits),
		maxRefundWei:  new(big.Int).SetUint64(cfg.MaxRefundWei),
		defaultRefund: cfg.DefaultRefundAddress,
		estimator:     estimator,
		cache:         cache,
	}

	if !cfg.Enabled {
		return e, nil
	}
	if cfg.SponsorKey == "" {
		return nil, fmt.Errorf("sponsorship enabled but sponsor_key is empty")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SponsorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid sponsor key: %w", err)
	}
	price, err := decimal.NewFromString(cfg.EthPriceQuote)
	if err != nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("invalid eth_price_quote %q", cfg.EthPriceQuote)
	}

	e.enabled = true
	e.sponsorKey = key
	e.ethPriceQuote = price
	return e, nil
}

// Enabled reports whether the engine can grant refunds at all. A
// disabled engine computes zero refunds and leaves responses unsponsored.
func (e *SponsorshipEngine) Enabled() bool {
	return e.enabled && e.estimator != nil
}

// --- Refund computation --- //

// ComputeRefund returns the refund for the given match, denominated in
// wei for native refunds and in receive-token base units otherwise.
// Returns zero when sponsorship conditions are not met.
func (e *SponsorshipEngine) ComputeRefund(ctx context.Context, m *model.ExternalMatchResult, refundNativeEth bool) model.Amount {
	if !e.Enabled() {
		return model.NewAmount(0)
	}
	gasPrice, err := e.estimator.GasPriceWei(ctx)
	if err != nil {
		logger.Warn("gas price estimate unavailable, skipping sponsorship", "error", err)
		return model.NewAmount(0)
	}

	costWei := new(big.Int).Mul(e.gasUnits, gasPrice)
	if costWei.Cmp(e.maxRefundWei) > 0 {
		costWei.Set(e.maxRefundWei)
	}
	if refundNativeEth {
		return model.NewAmountFromBig(costWei)
	}
	return e.convertWeiToReceiveToken(costWei, m)
}

// convertWeiToReceiveToken converts a wei-denominated gas cost into the
// match's receive-token base units using the operator-configured ETH
// price and the match's implied price. Results are floored to integers.
func (e *SponsorshipEngine) convertWeiToReceiveToken(costWei *big.Int, m *model.ExternalMatchResult) model.Amount {
	costDec := decimal.NewFromBigInt(costWei, 0)
	quoteUnits := costDec.Mul(e.ethPriceQuote).Div(weiPerEth)

	if !m.Direction {
		// Seller receives the quote token
		return model.NewAmountFromBig(quoteUnits.Floor().BigInt())
	}

	// Buyer receives the base token: scale by the implied base/quote
	// ratio of this match
	quoteAmt := decimal.NewFromBigInt(m.QuoteAmount.BigInt(), 0)
	if quoteAmt.Sign() == 0 {
		return model.NewAmount(0)
	}
	baseAmt := decimal.NewFromBigInt(m.BaseAmount.BigInt(), 0)
	baseUnits := quoteUnits.Mul(baseAmt).Div(quoteAmt)
	return model.NewAmountFromBig(baseUnits.Floor().BigInt())
}

func (e *SponsorshipEngine) newInfo(refund model.Amount, refundNativeEth bool, refundAddress *string) *model.GasSponsorshipInfo {
	if refundAddress == nil && e.defaultRefund != "" {
		addr := e.defaultRefund
		refundAddress = &addr
	}
	return &model.GasSponsorshipInfo{
		RefundAmount:    refund,
		RefundNativeEth: refundNativeEth,
		RefundAddress:   refundAddress,
	}
}

// signInfo attests to the refund terms with the sponsor key so the
// on-chain gas sponsor can verify them.
func (e *SponsorshipEngine) signInfo(info *model.GasSponsorshipInfo) (*model.SignedGasSponsorshipInfo, error) {
	payload, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	digest := crypto.Keccak256(payload)
	sig, err := crypto.Sign(digest, e.sponsorKey)
	if err != nil {
		return nil, err
	}
	return &model.SignedGasSponsorshipInfo{
		GasSponsorshipInfo: *info,
		Signature:          hexutil.Encode(sig),
	}, nil
}

// --- Response construction --- //

// ConstructSponsoredQuoteResponse computes and attests sponsorship terms
// for a quote. In-kind refunds are folded into the quote's receive
// amounts so the caller sees the post-refund quote; the adjustment is
// undone with RemoveSponsorshipFromQuote before the quote is forwarded
// back to the relayer at assembly time. Native refunds leave the quote
// untouched. Returns a nil info when no refund could be granted.
func (e *SponsorshipEngine) ConstructSponsoredQuoteResponse(
	ctx context.Context,
	resp *model.ExternalQuoteResponse,
	refundNativeEth bool,
	refundAddress *string,
) (*model.SponsoredQuoteResponse, *model.GasSponsorshipInfo, error) {
	unsponsored := &model.SponsoredQuoteResponse{SignedQuote: resp.SignedQuote}

	refund := e.ComputeRefund(ctx, &resp.SignedQuote.Quote.MatchResult, refundNativeEth)
	if refund.IsZero() {
		return unsponsored, nil, nil
	}

	info := e.newInfo(refund, refundNativeEth, refundAddress)
	sponsoredQuote := resp.SignedQuote
	if info.RequiresMatchResultUpdate() {
		if refund.Cmp(sponsoredQuote.Quote.Receive.Amount) > 0 {
			logger.Warn("refund exceeds receive amount, leaving quote unsponsored",
				"refund", refund.String(), "receive", sponsoredQuote.Quote.Receive.Amount.String())
			return unsponsored, nil, nil
		}
		applySponsorshipToQuote(&sponsoredQuote.Quote, refund)
	}

	signed, err := e.signInfo(info)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign sponsorship info: %w", err)
	}
	return &model.SponsoredQuoteResponse{
		SignedQuote:        sponsoredQuote,
		GasSponsorshipInfo: signed,
	}, info, nil
}

// applySponsorshipToQuote folds an in-kind refund into the quote's
// receive amounts. RemoveSponsorshipFromQuote is its exact inverse.
func applySponsorshipToQuote(q *model.ExternalQuote, refund model.Amount) {
	q.Receive.Amount = q.Receive.Amount.Sub(refund)
	q.MatchResult.SetReceiveAmount(q.MatchResult.ReceiveAmount().Sub(refund))
}

// ConstructSponsoredMatchResponse applies the given sponsorship to a
// match bundle. In-kind refunds decrease the receive-side transfer by
// the refund amount; native refunds leave token amounts untouched and
// are realized as a separate native transfer by the execution layer. If
// the refund would exceed the receive amount the bundle is returned
// unsponsored rather than driven negative.
func (e *SponsorshipEngine) ConstructSponsoredMatchResponse(
	resp *model.ExternalMatchResponse,
	info *model.GasSponsorshipInfo,
) *model.SponsoredMatchResponse {
	bundle := resp.MatchBundle

	if info.RequiresMatchResultUpdate() {
		if info.RefundAmount.Cmp(bundle.Receive.Amount) > 0 {
			logger.Warn("refund exceeds receive amount, leaving bundle unsponsored",
				"refund", info.RefundAmount.String(), "receive", bundle.Receive.Amount.String())
			return &model.SponsoredMatchResponse{MatchBundle: bundle}
		}
		bundle.Receive.Amount = bundle.Receive.Amount.Sub(info.RefundAmount)
		bundle.MatchResult.SetReceiveAmount(
			bundle.MatchResult.ReceiveAmount().Sub(info.RefundAmount))
	}

	return &model.SponsoredMatchResponse{
		MatchBundle:        bundle,
		IsSponsored:        true,
		GasSponsorshipInfo: info,
	}
}

// SponsorMatch computes a fresh refund for the given match response and
// applies it. A zero refund yields an unsponsored response.
func (e *SponsorshipEngine) SponsorMatch(
	ctx context.Context,
	resp *model.ExternalMatchResponse,
	refundNativeEth bool,
	refundAddress *string,
) *model.SponsoredMatchResponse {
	refund := e.ComputeRefund(ctx, &resp.MatchBundle.MatchResult, refundNativeEth)
	if refund.IsZero() {
		return &model.SponsoredMatchResponse{MatchBundle: resp.MatchBundle}
	}
	info := e.newInfo(refund, refundNativeEth, refundAddress)
	return e.ConstructSponsoredMatchResponse(resp, info)
}

// RemoveSponsorshipFromQuote undoes an in-kind quote sponsorship,
// restoring the receive amounts the relayer originally signed so it
// re-validates the quote against its own signature at assembly time.
func RemoveSponsorshipFromQuote(q *model.ExternalQuote, refund model.Amount) {
	q.Receive.Amount = q.Receive.Amount.Add(refund)
	q.MatchResult.SetReceiveAmount(q.MatchResult.ReceiveAmount().Add(refund))
}

// --- Cache --- //

// QuoteCacheKey derives a deterministic, content-addressed key for a
// signed quote: identical quote content yields the same key, any change
// yields a different one. The key is independent of caller identity so
// any caller holding the quote can complete the flow.
func QuoteCacheKey(sq *model.SignedQuote) (string, error) {
	payload, err := json.Marshal(sq)
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(quoteKeyNamespace, payload).String(), nil
}

// CacheSponsorship stores the sponsorship terms for later retrieval at
// assembly time, keyed by the quote's content hash.
func (e *SponsorshipEngine) CacheSponsorship(ctx context.Context, sq *model.SignedQuote, info *model.GasSponsorshipInfo) error {
	key, err := QuoteCacheKey(sq)
	if err != nil {
		return err
	}
	return e.cache.Put(ctx, key, info)
}

// LookupSponsorship fetches the sponsorship terms cached at quote time.
// Misses and store errors both yield nil: a lost cache entry degrades
// the request to unsponsored, it never fails it.
func (e *SponsorshipEngine) LookupSponsorship(ctx context.Context, sq *model.SignedQuote) *model.GasSponsorshipInfo {
	key, err := QuoteCacheKey(sq)
	if err != nil {
		logger.Error("failed to derive quote cache key", "error", err)
		return nil
	}
	info, err := e.cache.Get(ctx, key)
	if err != nil {
		logger.Error("failed to read sponsorship info from cache", "error", err)
		return nil
	}
	return info
}
