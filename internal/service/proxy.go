package service

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/darkpool-labs/relaygate/internal/model"
	"github.com/darkpool-labs/relaygate/internal/pkg/apperrors"
	"github.com/darkpool-labs/relaygate/internal/pkg/logger"
	"github.com/darkpool-labs/relaygate/internal/pkg/metrics"
)

const (
	endpointQuote    = "request-external-quote"
	endpointAssemble = "assemble-external-match"
	endpointMatch    = "request-external-match"
)

// Proxy sequences the per-request pipeline: the caller has already been
// authorized upstream; the proxy rate-limits, forwards to the relayer
// with admin credentials, rewrites sponsorship, responds, and hands the
// settlement tracking to the background worker pool. The response is
// always produced before tracking begins and never awaits it.
type Proxy struct {
	relayer         Forwarder
	limiter         *RateLimiter
	engine          *SponsorshipEngine
	watcher         *SettlementWatcher
	pool            *WorkerPool
	accounting      *AccountingService
	quoteSampleRate float64
}

func NewProxy(
	relayer Forwarder,
	limiter *RateLimiter,
	engine *SponsorshipEngine,
	watcher *SettlementWatcher,
	pool *WorkerPool,
	accounting *AccountingService,
	quoteSampleRate float64,
) *Proxy {
	return &Proxy{
		relayer:         relayer,
		limiter:         limiter,
		engine:          engine,
		watcher:         watcher,
		pool:            pool,
		accounting:      accounting,
		quoteSampleRate: quoteSampleRate,
	}
}

// --- Quote --- //

func (p *Proxy) HandleQuote(
	ctx context.Context,
	caller *model.Caller,
	path, rawQuery string,
	body []byte,
	params *model.SponsorshipQueryParams,
	sdkVersion string,
) (*UpstreamResponse, error) {
	if !p.limiter.Admit(ctx, caller.Description, LimitQuote) {
		return nil, apperrors.NewRateLimited("quote rate limit exceeded")
	}

	resp, err := p.relayer.Forward(ctx, path, rawQuery, body)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		p.recordUnsuccessfulRelayerResponse(resp, caller, path, body, sdkVersion)
		return resp, nil
	}

	sponsored, info, err := p.maybeApplySponsorshipToQuote(ctx, caller, resp.Body, params)
	if err != nil {
		return nil, err
	}
	if err := overwriteBody(resp, sponsored); err != nil {
		return nil, apperrors.Wrap(err)
	}

	reqBody := body
	p.pool.Submit("quote-response", func(taskCtx context.Context) {
		if info != nil {
			if err := p.engine.CacheSponsorship(taskCtx, &sponsored.SignedQuote, info); err != nil {
				logger.Error("failed to cache quote sponsorship info", "error", err)
			}
		}
		p.handleQuoteResponse(caller, reqBody, sponsored, sdkVersion)
	})

	return resp, nil
}

func (p *Proxy) maybeApplySponsorshipToQuote(
	ctx context.Context,
	caller *model.Caller,
	respBody []byte,
	params *model.SponsorshipQueryParams,
) (*model.SponsoredQuoteResponse, *model.GasSponsorshipInfo, error) {
	disabled, refundAddress, refundNativeEth := params.GetOrDefault()

	var quoteResp model.ExternalQuoteResponse
	if err := json.Unmarshal(respBody, &quoteResp); err != nil {
		return nil, nil, apperrors.NewSerde(err)
	}

	// Sponsorship is a value-add: an exhausted sponsorship bucket skips
	// it rather than rejecting the request
	rateLimited := !p.limiter.Check(ctx, caller.Description, LimitSponsorship)
	if rateLimited || disabled || !p.engine.Enabled() {
		return &model.SponsoredQuoteResponse{SignedQuote: quoteResp.SignedQuote}, nil, nil
	}

	sponsored, info, err := p.engine.ConstructSponsoredQuoteResponse(ctx, &quoteResp, refundNativeEth, refundAddress)
	if err != nil {
		// Sponsorship failures are invisible to the caller
		logger.Error("failed to construct sponsored quote, returning unsponsored", "error", err)
		return &model.SponsoredQuoteResponse{SignedQuote: quoteResp.SignedQuote}, nil, nil
	}
	return sponsored, info, nil
}

// --- Quote assembly --- //

func (p *Proxy) HandleAssembly(
	ctx context.Context,
	caller *model.Caller,
	path, rawQuery string,
	body []byte,
	params *model.SponsorshipQueryParams,
	sdkVersion string,
) (*UpstreamResponse, error) {
	if !p.limiter.Admit(ctx, caller.Description, LimitBundle) {
		return nil, apperrors.NewRateLimited("bundle rate limit exceeded")
	}

	var req model.AssembleExternalMatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperrors.NewSerde(err)
	}

	// Undo the effects of any sponsorship granted at quote time, so the
	// relayer re-validates the original signed amounts
	info := p.engine.LookupSponsorship(ctx, &req.SignedQuote)
	if info != nil && info.RequiresMatchResultUpdate() {
		RemoveSponsorshipFromQuote(&req.SignedQuote.Quote, info.RefundAmount)
	}

	fwdBody, err := json.Marshal(&req)
	if err != nil {
		return nil, apperrors.NewSerde(err)
	}

	resp, err := p.relayer.Forward(ctx, path, rawQuery, fwdBody)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		p.recordUnsuccessfulRelayerResponse(resp, caller, path, fwdBody, sdkVersion)
		return resp, nil
	}

	var matchResp model.ExternalMatchResponse
	if err := json.Unmarshal(resp.Body, &matchResp); err != nil {
		return nil, apperrors.NewSerde(err)
	}

	var sponsoredResp *model.SponsoredMatchResponse
	switch {
	case info != nil:
		logger.Info("sponsoring assembled quote bundle", "key", caller.Description)
		sponsoredResp = p.engine.ConstructSponsoredMatchResponse(&matchResp, info)
	case params.UseGasSponsorship != nil && *params.UseGasSponsorship:
		// An outdated client invoked the assembly endpoint with the
		// deprecated opt-in and no cached terms survive. Re-derive
		// sponsorship with the legacy default of native ETH refunds.
		legacy := *params
		nativeEth := true
		legacy.RefundNativeEth = &nativeEth
		sponsoredResp = p.maybeApplySponsorshipToMatch(ctx, caller, &matchResp, &legacy)
	default:
		sponsoredResp = &model.SponsoredMatchResponse{MatchBundle: matchResp.MatchBundle}
	}
	p.recordSponsoredMatch(caller, sponsoredResp)

	if err := overwriteBody(resp, sponsoredResp); err != nil {
		return nil, apperrors.Wrap(err)
	}

	requestID := uuid.NewString()
	order := req.SignedQuote.Quote.Order
	if req.UpdatedOrder != nil {
		logUpdatedOrder(caller, &order, req.UpdatedOrder, requestID, sdkVersion)
		order = *req.UpdatedOrder
	}

	p.pool.Submit("assembly-bundle", func(taskCtx context.Context) {
		p.handleBundleResponse(taskCtx, caller, order, sponsoredResp, requestID, endpointAssemble, sdkVersion)
	})

	return resp, nil
}

// --- Direct match --- //

func (p *Proxy) HandleMatch(
	ctx context.Context,
	caller *model.Caller,
	path, rawQuery string,
	body []byte,
	params *model.SponsorshipQueryParams,
	sdkVersion string,
) (*UpstreamResponse, error) {
	if !p.limiter.Admit(ctx, caller.Description, LimitBundle) {
		return nil, apperrors.NewRateLimited("bundle rate limit exceeded")
	}

	resp, err := p.relayer.Forward(ctx, path, rawQuery, body)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		p.recordUnsuccessfulRelayerResponse(resp, caller, path, body, sdkVersion)
		return resp, nil
	}

	var matchResp model.ExternalMatchResponse
	if err := json.Unmarshal(resp.Body, &matchResp); err != nil {
		return nil, apperrors.NewSerde(err)
	}

	sponsoredResp := p.maybeApplySponsorshipToMatch(ctx, caller, &matchResp, params)
	p.recordSponsoredMatch(caller, sponsoredResp)

	if err := overwriteBody(resp, sponsoredResp); err != nil {
		return nil, apperrors.Wrap(err)
	}

	// The relayer already accepted the request body, so a parse failure
	// here must not fail the response the caller is owed
	requestID := uuid.NewString()
	reqBody := body
	p.pool.Submit("direct-match-bundle", func(taskCtx context.Context) {
		var matchReq model.ExternalMatchRequest
		if err := json.Unmarshal(reqBody, &matchReq); err != nil {
			logger.Error("failed to parse direct match request for bundle tracking",
				"error", err, "key", caller.Description, "request_id", requestID)
			return
		}
		p.handleBundleResponse(taskCtx, caller, matchReq.ExternalOrder, sponsoredResp, requestID, endpointMatch, sdkVersion)
	})

	return resp, nil
}

func (p *Proxy) maybeApplySponsorshipToMatch(
	ctx context.Context,
	caller *model.Caller,
	matchResp *model.ExternalMatchResponse,
	params *model.SponsorshipQueryParams,
) *model.SponsoredMatchResponse {
	disabled, refundAddress, refundNativeEth := params.GetOrDefault()

	rateLimited := !p.limiter.Check(ctx, caller.Description, LimitSponsorship)
	if rateLimited || disabled || !p.engine.Enabled() {
		return &model.SponsoredMatchResponse{MatchBundle: matchResp.MatchBundle}
	}

	logger.Info("sponsoring match bundle", "key", caller.Description)
	return p.engine.SponsorMatch(ctx, matchResp, refundNativeEth, refundAddress)
}

// --- Bundle tracking --- //

// handleBundleResponse records and watches a bundle that was forwarded
// to the client: it awaits settlement, and on confirmation credits the
// bundle bucket, charges the sponsorship grant, and finalizes the
// ledger. It runs only in the background worker pool.
func (p *Proxy) handleBundleResponse(
	ctx context.Context,
	caller *model.Caller,
	order model.ExternalOrder,
	resp *model.SponsoredMatchResponse,
	requestID, endpoint, sdkVersion string,
) {
	logBundle(caller, &order, resp, requestID, endpoint, sdkVersion)
	recordFillRatios(caller, &order, &resp.MatchBundle.MatchResult)

	didSettle := p.watcher.AwaitSettlement(ctx, &resp.MatchBundle)
	metrics.SettlementsTotal.WithLabelValues(
		caller.Description, strconv.FormatBool(didSettle), endpoint).Inc()

	if didSettle {
		p.limiter.Credit(ctx, caller.Description, LimitBundle)
		if resp.IsSponsored && resp.GasSponsorshipInfo != nil {
			// Sponsorship grants are charged when the refund is realized
			p.limiter.Admit(ctx, caller.Description, LimitSponsorship)
			p.accounting.RecordSettledSponsorship(ctx, caller.Description, requestID, resp.GasSponsorshipInfo)
		}
	}

	p.accounting.RecordMatch(ctx, caller.Description, requestID, endpoint, sdkVersion,
		&resp.MatchBundle.MatchResult, didSettle, resp.IsSponsored)
}

// handleQuoteResponse logs the quote and emits sampled telemetry. It
// runs only in the background worker pool.
func (p *Proxy) handleQuoteResponse(
	caller *model.Caller,
	reqBody []byte,
	resp *model.SponsoredQuoteResponse,
	sdkVersion string,
) {
	logQuote(caller, resp, sdkVersion)

	if rand.Float64() >= p.quoteSampleRate {
		return
	}

	var req model.ExternalQuoteRequest
	if err := json.Unmarshal(reqBody, &req); err != nil {
		logger.Warn("failed to parse quote request for telemetry", "error", err)
		return
	}

	quote := &resp.SignedQuote.Quote
	requested := requestedQuoteAmount(&req.ExternalOrder, quote)
	if requested.Sign() > 0 {
		ratio, _ := decimal.NewFromBigInt(quote.MatchResult.QuoteAmount.BigInt(), 0).
			Div(requested).Float64()
		metrics.FillRatio.WithLabelValues(caller.Description, "quote").Observe(ratio)
	}
	metrics.QuoteRequestsTotal.WithLabelValues(caller.Description, req.ExternalOrder.BaseMint).Inc()
}

// --- Helpers --- //

func (p *Proxy) recordUnsuccessfulRelayerResponse(
	resp *UpstreamResponse,
	caller *model.Caller,
	path string,
	reqBody []byte,
	sdkVersion string,
) {
	metrics.RelayerErrorsTotal.WithLabelValues(path, strconv.Itoa(resp.Status)).Inc()
	logger.Warn("non-200 response from relayer",
		"key", caller.Description,
		"path", path,
		"status", resp.Status,
		"response_body", string(resp.Body),
		"request_body", string(reqBody),
		"sdk_version", sdkVersion,
	)
}

func (p *Proxy) recordSponsoredMatch(caller *model.Caller, resp *model.SponsoredMatchResponse) {
	if !resp.IsSponsored || resp.GasSponsorshipInfo == nil {
		return
	}
	metrics.SponsoredMatchesTotal.WithLabelValues(
		caller.Description,
		strconv.FormatBool(resp.GasSponsorshipInfo.RefundNativeEth)).Inc()
}

func overwriteBody(resp *UpstreamResponse, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	resp.Body = payload
	resp.ContentType = "application/json"
	resp.Status = http.StatusOK
	return nil
}

// requestedQuoteAmount resolves the order's requested size in quote
// units: directly when quote-denominated, via the quoted price otherwise.
func requestedQuoteAmount(order *model.ExternalOrder, quote *model.ExternalQuote) decimal.Decimal {
	if order.QuoteAmount.Sign() > 0 {
		return decimal.NewFromBigInt(order.QuoteAmount.BigInt(), 0)
	}
	price, err := decimal.NewFromString(quote.Price.Price)
	if err != nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(order.BaseAmount.BigInt(), 0).Mul(price)
}

func recordFillRatios(caller *model.Caller, order *model.ExternalOrder, result *model.ExternalMatchResult) {
	if order.BaseAmount.Sign() > 0 {
		ratio, _ := decimal.NewFromBigInt(result.BaseAmount.BigInt(), 0).
			Div(decimal.NewFromBigInt(order.BaseAmount.BigInt(), 0)).Float64()
		metrics.FillRatio.WithLabelValues(caller.Description, "base").Observe(ratio)
	}
	if order.QuoteAmount.Sign() > 0 {
		ratio, _ := decimal.NewFromBigInt(result.QuoteAmount.BigInt(), 0).
			Div(decimal.NewFromBigInt(order.QuoteAmount.BigInt(), 0)).Float64()
		metrics.FillRatio.WithLabelValues(caller.Description, "quote").Observe(ratio)
	}
}

func logQuote(caller *model.Caller, resp *model.SponsoredQuoteResponse, sdkVersion string) {
	quote := &resp.SignedQuote.Quote
	refundAmount := "0"
	refundNativeEth := false
	if resp.GasSponsorshipInfo != nil {
		refundAmount = resp.GasSponsorshipInfo.GasSponsorshipInfo.RefundAmount.String()
		refundNativeEth = resp.GasSponsorshipInfo.GasSponsorshipInfo.RefundNativeEth
	}
	logger.Info("sending quote to client",
		"key", caller.Description,
		"sdk_version", sdkVersion,
		"is_buy", quote.MatchResult.Direction,
		"receive_amount", quote.Receive.Amount.String(),
		"receive_mint", quote.Receive.Mint,
		"send_amount", quote.Send.Amount.String(),
		"send_mint", quote.Send.Mint,
		"is_sponsored", resp.GasSponsorshipInfo != nil,
		"refund_amount", refundAmount,
		"refund_native_eth", refundNativeEth,
	)
}

func logBundle(
	caller *model.Caller,
	order *model.ExternalOrder,
	resp *model.SponsoredMatchResponse,
	requestID, endpoint, sdkVersion string,
) {
	bundle := &resp.MatchBundle
	refundAmount := "0"
	refundNativeEth := false
	if resp.GasSponsorshipInfo != nil {
		refundAmount = resp.GasSponsorshipInfo.RefundAmount.String()
		refundNativeEth = resp.GasSponsorshipInfo.RefundNativeEth
	}
	logger.Info("sending bundle to client",
		"key", caller.Description,
		"request_id", requestID,
		"endpoint", endpoint,
		"sdk_version", sdkVersion,
		"is_buy", bundle.MatchResult.Direction,
		"requested_base_amount", order.BaseAmount.String(),
		"requested_quote_amount", order.QuoteAmount.String(),
		"response_base_amount", bundle.MatchResult.BaseAmount.String(),
		"response_quote_amount", bundle.MatchResult.QuoteAmount.String(),
		"receive_amount", bundle.Receive.Amount.String(),
		"receive_mint", bundle.Receive.Mint,
		"send_amount", bundle.Send.Amount.String(),
		"send_mint", bundle.Send.Mint,
		"is_sponsored", resp.IsSponsored,
		"refund_amount", refundAmount,
		"refund_native_eth", refundNativeEth,
	)
}

func logUpdatedOrder(caller *model.Caller, original, updated *model.ExternalOrder, requestID, sdkVersion string) {
	logger.Info("quote order updated at assembly",
		"key", caller.Description,
		"request_id", requestID,
		"sdk_version", sdkVersion,
		"original_base_amount", original.BaseAmount.String(),
		"updated_base_amount", updated.BaseAmount.String(),
		"original_quote_amount", original.QuoteAmount.String(),
		"updated_quote_amount", updated.QuoteAmount.String(),
	)
}
