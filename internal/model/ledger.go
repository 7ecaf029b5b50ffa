package model

import "time"

// MatchRecord is the accounting row written after a match bundle has
// been tracked to its settlement outcome.
type MatchRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RequestID   string `gorm:"index"`
	Key         string `gorm:"index;column:key_description"`
	Endpoint    string
	BaseMint    string
	QuoteMint   string
	Direction   bool
	BaseAmount  string
	QuoteAmount string
	Settled     bool
	Sponsored   bool
	SDKVersion  string
	CreatedAt   time.Time
}

// SponsorshipRecord is written once per sponsored bundle that settled,
// finalizing the refund in the ledger.
type SponsorshipRecord struct {
	ID              uint   `gorm:"primaryKey"`
	RequestID       string `gorm:"index"`
	Key             string `gorm:"index;column:key_description"`
	RefundAmount    string
	RefundNativeEth bool
	RefundAddress   string
	SettledAt       time.Time
	CreatedAt       time.Time
}
