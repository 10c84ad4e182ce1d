package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies the book side an order or level belongs to.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Invert returns the opposite side.
func (s Side) Invert() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Time in force for synthetic events. GTC events rest in the book;
// FOK events must execute immediately and never rest.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceFOK TimeInForce = "FOK"
)

// Owner distinguishes fabricated book structure from the emulated
// trader's own resting interest.
type Owner string

const (
	OwnerSynthetic Owner = "SYNTHETIC"
	OwnerExternal  Owner = "EXTERNAL"
)

// QuoteLevel is one price level of a depth snapshot.
type QuoteLevel struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// SyntheticEvent is the unit of the synthetic order log consumed by the
// downstream matching engine. Volume is always positive; IsCancel marks
// removals, IsTrade marks tick trades that do not touch the book.
type SyntheticEvent struct {
	SecurityID    string          `json:"security_id"`
	Side          Side            `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Volume        decimal.Decimal `json:"volume"`
	IsCancel      bool            `json:"is_cancel,omitempty"`
	IsTrade       bool            `json:"is_trade,omitempty"`
	TimeInForce   TimeInForce     `json:"time_in_force,omitempty"`
	Owner         Owner           `json:"owner,omitempty"`
	OrderID       int64           `json:"order_id,omitempty"`
	TransactionID int64           `json:"transaction_id,omitempty"`
	// OriginTransactionID references the transaction being cancelled or
	// replaced, for external order lifecycle events.
	OriginTransactionID int64     `json:"origin_transaction_id,omitempty"`
	ServerTime          time.Time `json:"server_time"`
	LocalTime           time.Time `json:"local_time"`
}

// MessageMeta is shared by every inbound historical message.
type MessageMeta struct {
	SecurityID string    `json:"security_id"`
	ServerTime time.Time `json:"server_time"`
	LocalTime  time.Time `json:"local_time"`
}

func (m MessageMeta) Meta() MessageMeta { return m }

// Message is the closed union of inbound historical message kinds.
// Exactly five types implement it: SnapshotMessage, TradeMessage,
// Level1Message, OrderIntentMessage and SecurityDefinitionMessage.
type Message interface {
	Meta() MessageMeta
	isMessage()
}

// SnapshotMessage is a full depth snapshot. Bids and Asks are best-first
// when IsSorted is set; otherwise the engine sorts them.
type SnapshotMessage struct {
	MessageMeta
	Bids     []QuoteLevel `json:"bids"`
	Asks     []QuoteLevel `json:"asks"`
	IsSorted bool         `json:"is_sorted"`
}

func (*SnapshotMessage) isMessage() {}

// TradeMessage is a single historical trade print. OriginSide is the
// aggressor side when known, empty otherwise.
type TradeMessage struct {
	MessageMeta
	Price      decimal.Decimal `json:"price"`
	Volume     decimal.Decimal `json:"volume"`
	OriginSide Side            `json:"origin_side,omitempty"`
}

func (*TradeMessage) isMessage() {}

// Level1Message carries a partial top-of-book update. Nil fields were not
// present in the update. A Level1 update may also embed the last trade.
type Level1Message struct {
	MessageMeta
	BestBidPrice    *decimal.Decimal `json:"best_bid_price,omitempty"`
	BestBidVolume   *decimal.Decimal `json:"best_bid_volume,omitempty"`
	BestAskPrice    *decimal.Decimal `json:"best_ask_price,omitempty"`
	BestAskVolume   *decimal.Decimal `json:"best_ask_volume,omitempty"`
	LastTradePrice  *decimal.Decimal `json:"last_trade_price,omitempty"`
	LastTradeVolume *decimal.Decimal `json:"last_trade_volume,omitempty"`
}

func (*Level1Message) isMessage() {}

// IntentKind discriminates order lifecycle intents.
type IntentKind string

const (
	IntentRegister IntentKind = "REGISTER"
	IntentReplace  IntentKind = "REPLACE"
	IntentCancel   IntentKind = "CANCEL"
)

// OrderIntentMessage is an abstract order lifecycle intent from the
// emulated trader. For Replace, OrderID and OriginTransactionID reference
// the order being replaced and Price/Volume/Side describe the new order.
type OrderIntentMessage struct {
	MessageMeta
	Kind                IntentKind      `json:"kind"`
	TransactionID       int64           `json:"transaction_id"`
	Side                Side            `json:"side,omitempty"`
	Price               decimal.Decimal `json:"price,omitempty"`
	Volume              decimal.Decimal `json:"volume,omitempty"`
	OrderID             int64           `json:"order_id,omitempty"`
	OriginTransactionID int64           `json:"origin_transaction_id,omitempty"`
}

func (*OrderIntentMessage) isMessage() {}

// SecurityDefinitionMessage is an explicit override of the inferred
// price/volume steps. A nil field re-enables lazy inference for it.
type SecurityDefinitionMessage struct {
	MessageMeta
	PriceStep  *decimal.Decimal `json:"price_step,omitempty"`
	VolumeStep *decimal.Decimal `json:"volume_step,omitempty"`
}

func (*SecurityDefinitionMessage) isMessage() {}
