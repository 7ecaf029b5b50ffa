package model

// GasSponsorshipInfo describes a gas refund granted for a match. It is
// derived once per quote, cached keyed by the quote's content hash, and
// consumed at most once more during assembly.
type GasSponsorshipInfo struct {
	RefundAmount    Amount  `json:"refund_amount"`
	RefundNativeEth bool    `json:"refund_native_eth"`
	RefundAddress   *string `json:"refund_address,omitempty"`
}

// RequiresMatchResultUpdate reports whether applying this sponsorship
// rewrites the match amounts. Native-asset refunds leave token transfer
// amounts untouched; in-kind refunds adjust the receive side.
func (i *GasSponsorshipInfo) RequiresMatchResultUpdate() bool {
	return !i.RefundNativeEth && i.RefundAmount.Sign() > 0
}

// SignedGasSponsorshipInfo is a sponsorship attestation signed by the
// gateway's sponsor key, verifiable by the on-chain gas sponsor.
type SignedGasSponsorshipInfo struct {
	GasSponsorshipInfo GasSponsorshipInfo `json:"gas_sponsorship_info"`
	Signature          string             `json:"signature"`
}

// SponsoredQuoteResponse wraps the relayer quote response. Clients that
// did not request sponsorship are expected to ignore the extra field.
type SponsoredQuoteResponse struct {
	SignedQuote        SignedQuote               `json:"signed_quote"`
	GasSponsorshipInfo *SignedGasSponsorshipInfo `json:"gas_sponsorship_info,omitempty"`
}

// SponsoredMatchResponse wraps the relayer match response. Clients that
// did not request sponsorship are expected to ignore the extra fields.
type SponsoredMatchResponse struct {
	MatchBundle        MatchBundle         `json:"match_bundle"`
	IsSponsored        bool                `json:"is_sponsored"`
	GasSponsorshipInfo *GasSponsorshipInfo `json:"gas_sponsorship_info,omitempty"`
}

// SponsorshipQueryParams are the sponsorship controls accepted on the
// quote, assembly, and match routes.
type SponsorshipQueryParams struct {
	DisableGasSponsorship *bool   `form:"disable_gas_sponsorship"`
	RefundAddress         *string `form:"refund_address"`
	RefundNativeEth       *bool   `form:"refund_native_eth"`

	// Deprecated: pre-v0.1.0 SDKs set this boolean opt-in instead of the
	// structured parameters above. It is honored for backward
	// compatibility with a native-ETH refund default.
	UseGasSponsorship *bool `form:"use_gas_sponsorship"`
}

// GetOrDefault resolves the parameters to their effective values:
// (sponsorship disabled, refund address, refund native eth).
func (p *SponsorshipQueryParams) GetOrDefault() (bool, *string, bool) {
	disabled := p.DisableGasSponsorship != nil && *p.DisableGasSponsorship
	nativeEth := p.RefundNativeEth != nil && *p.RefundNativeEth
	return disabled, p.RefundAddress, nativeEth
}
