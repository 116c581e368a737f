package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeAndSale is one equity time-and-sale print. The natural key is
// (symbol, created_on, trade_index); re-ingesting the same key is a no-op.
type TimeAndSale struct {
	ID            int64
	Symbol        string
	TradeIndex    int64
	CreatedOn     time.Time
	ReceivedOn    time.Time
	Size          float64
	Price         decimal.Decimal
	BidPrice      decimal.Decimal
	AskPrice      decimal.Decimal
	ExchangeCode  string
	AggressorSide string
	SpreadLeg     bool
	ExtendedHours bool
	ValidTick     bool
}

// BroadcastKey partitions broadcast fan-out by symbol.
func (t TimeAndSale) BroadcastKey() string { return t.Symbol }

// QuoteEventType discriminates quote feed events.
type QuoteEventType string

const (
	QuoteEventLastTrade QuoteEventType = "LAST_TRADE"
	QuoteEventTopOfBook QuoteEventType = "TOP_OF_BOOK"
)

// QuoteEvent is one quote feed observation. The natural key is
// (symbol, created_on, hash), the hash covering the payload fields.
type QuoteEvent struct {
	ID         int64
	Symbol     string
	EventType  QuoteEventType
	CreatedOn  time.Time
	BidSize    int
	BidPrice   decimal.Decimal
	MidPrice   decimal.Decimal
	AskPrice   decimal.Decimal
	AskSize    int
	LastPrice  decimal.Decimal
	LastSize   int
	Halted     bool
	AfterHours bool
	OddLot     bool
	Hash       int64
}

func (q QuoteEvent) BroadcastKey() string { return q.Symbol }

// Snapshot pairs the most recent quote event for a symbol with the last trade
// price observed during the prior calendar day. PrevClose is zero when no
// reference value exists in that window; that is not an error.
type Snapshot struct {
	Quote     QuoteEvent
	PrevClose decimal.Decimal
}

// OptionTrade is one options sweep row. The natural key is
// (occurred_at, trade_id).
type OptionTrade struct {
	ID            int64
	TradeID       int64
	Symbol        string
	OccurredAt    time.Time
	Expiry        time.Time
	Strike        decimal.Decimal
	OptionType    string // "P" or "C"
	Side          int
	Price         decimal.Decimal
	Size          int
	Exchange      string
	Volume        int
	BidPrice      decimal.Decimal
	AskPrice      decimal.Decimal
	Notional      decimal.Decimal
	OpenInterest  int
	Sentiment     string
	Unusual       bool
	HighlyUnusual bool
}

func (t OptionTrade) BroadcastKey() string { return t.Symbol }

// PutCallSummary aggregates traded put and call size over a window.
type PutCallSummary struct {
	Puts  int64
	Calls int64
}

// PowerAlert is a mutable per-symbol-per-day aggregate. ID zero means the
// alert has not been persisted yet.
type PowerAlert struct {
	ID               int64
	Symbol           string
	AlertDate        time.Time
	CreatedOn        time.Time
	UpdatedOn        time.Time
	ContractExpiry   *time.Time
	ContractStrike   decimal.Decimal
	ContractType     string
	Broken           bool
	Strength         int
	StrengthIncrease int
	FirstSpot        decimal.Decimal
	FirstVolume      float64
	VolumeDelta      float64
	NumCalls         int
	NumUnusual       int
	NumHighlyUnusual int
	NumDarkPool      int
}

func (p PowerAlert) BroadcastKey() string { return p.Symbol }

// VolumeSnapshot is the daily option-volume aggregate for a symbol.
// SignaturePrint tracks how many times a symbol's signature print pattern has
// been seen and when it last occurred. One row per symbol.
type SignaturePrint struct {
	Symbol     string
	Occurrence int
	PrintDate  time.Time
}

func (s SignaturePrint) BroadcastKey() string { return s.Symbol }

type VolumeSnapshot struct {
	ID           int64
	Symbol       string
	Date         time.Time
	OptionVolume int
	Puts         int
	Calls        int
	PctADV       float64
	ADV          int
	OpenInterest int
	Spot         decimal.Decimal
	SpotChg      decimal.Decimal
	AtmIvol      float64
	AtmIvolChg   float64
	Volume       float64
	AvgVolume    float64
	Close        decimal.Decimal
	NetDelta     float64
	NetVega      float64
	Comments     string
}

func (v VolumeSnapshot) BroadcastKey() string { return v.Symbol }

// SimilarTo reports whether two snapshots carry the same material values.
// Upserting a similar snapshot refreshes the row without broadcasting.
func (v VolumeSnapshot) SimilarTo(other VolumeSnapshot) bool {
	return v.Symbol == other.Symbol &&
		v.Date.Equal(other.Date) &&
		v.OptionVolume == other.OptionVolume &&
		v.Puts == other.Puts &&
		v.Calls == other.Calls &&
		v.OpenInterest == other.OpenInterest &&
		v.Spot.Equal(other.Spot) &&
		v.Close.Equal(other.Close) &&
		v.Volume == other.Volume
}
