package model

// Wire types for the relayer's external matching API. The gateway treats
// most of these as opaque pass-through values; only the fields it reads
// (price, match amounts, order) or rewrites (match amounts, when
// reversing sponsorship) are interpreted.

// ExternalOrder is the caller's desired trade. It is never mutated in
// place; rewrites produce a new value.
type ExternalOrder struct {
	BaseMint    string `json:"base_mint"`
	QuoteMint   string `json:"quote_mint"`
	Side        string `json:"side"`
	BaseAmount  Amount `json:"base_amount"`
	QuoteAmount Amount `json:"quote_amount"`
	MinFillSize Amount `json:"min_fill_size"`
}

// IsBuy reports whether the order buys the base token.
func (o *ExternalOrder) IsBuy() bool {
	return o.Side == "buy"
}

// TimestampedPrice is a decimal price string with the time it was sampled.
type TimestampedPrice struct {
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

// ExternalMatchResult is the matched trade size produced by the relayer.
type ExternalMatchResult struct {
	BaseMint    string `json:"base_mint"`
	QuoteMint   string `json:"quote_mint"`
	BaseAmount  Amount `json:"base_amount"`
	QuoteAmount Amount `json:"quote_amount"`
	// Direction is true when the external party buys the base token
	Direction bool `json:"direction"`
}

// ReceiveAmount returns the amount of the token the external party
// receives: base when buying, quote when selling.
func (m *ExternalMatchResult) ReceiveAmount() Amount {
	if m.Direction {
		return m.BaseAmount
	}
	return m.QuoteAmount
}

// SetReceiveAmount overwrites the receive-side amount in place.
func (m *ExternalMatchResult) SetReceiveAmount(a Amount) {
	if m.Direction {
		m.BaseAmount = a
	} else {
		m.QuoteAmount = a
	}
}

// AssetTransfer is a single ERC-20 transfer leg of a settlement.
type AssetTransfer struct {
	Mint   string `json:"mint"`
	Amount Amount `json:"amount"`
}

// ExternalQuote is the relayer's priced quote for an external order.
type ExternalQuote struct {
	Order       ExternalOrder       `json:"order"`
	MatchResult ExternalMatchResult `json:"match_result"`
	Send        AssetTransfer       `json:"send"`
	Receive     AssetTransfer       `json:"receive"`
	Price       TimestampedPrice    `json:"price"`
	Timestamp   int64               `json:"timestamp"`
}

// SignedQuote is a quote with the relayer's signature over it. The
// signature is inviolate except for the match amounts the gateway is
// permitted to rewrite when reversing or reapplying sponsorship.
type SignedQuote struct {
	Quote     ExternalQuote `json:"quote"`
	Signature string        `json:"signature"`
}

// SettlementTx is the transaction the caller submits on-chain to settle
// a match bundle. Data is 0x-prefixed hex calldata; the match nullifier
// is its first word.
type SettlementTx struct {
	Type  string `json:"type"`
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

// MatchBundle is the relayer's executable settlement payload.
type MatchBundle struct {
	MatchResult  ExternalMatchResult `json:"match_result"`
	Receive      AssetTransfer       `json:"receive"`
	Send         AssetTransfer       `json:"send"`
	SettlementTx SettlementTx        `json:"settlement_tx"`
}

// --- Requests --- //

type ExternalQuoteRequest struct {
	ExternalOrder ExternalOrder `json:"external_order"`
}

type ExternalMatchRequest struct {
	ExternalOrder   ExternalOrder `json:"external_order"`
	DoGasEstimation bool          `json:"do_gas_estimation,omitempty"`
	ReceiverAddress *string       `json:"receiver_address,omitempty"`
}

type AssembleExternalMatchRequest struct {
	SignedQuote     SignedQuote    `json:"signed_quote"`
	UpdatedOrder    *ExternalOrder `json:"updated_order,omitempty"`
	ReceiverAddress *string        `json:"receiver_address,omitempty"`
	DoGasEstimation bool           `json:"do_gas_estimation,omitempty"`
}

// --- Responses --- //

type ExternalQuoteResponse struct {
	SignedQuote SignedQuote `json:"signed_quote"`
}

type ExternalMatchResponse struct {
	MatchBundle MatchBundle `json:"match_bundle"`
}
