/*

This file contains the analytics event records persisted by the ledger for every
committed trade and graduation. They feed the web surface's event feed and are never
read back by the engine itself.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// EventKind tags a ledger analytics event.
type EventKind string

const (
	EventTrade      EventKind = "TRADE"
	EventGraduation EventKind = "GRADUATION"
	EventClaim      EventKind = "CLAIM"
)

// MarketEvent is one row of the analytics feed.
type MarketEvent struct {
	ID          string      `json:"id"`
	Kind        EventKind   `json:"kind"`
	Token       Address     `json:"token"`
	Actor       Address     `json:"actor"`
	Side        TradeSide   `json:"side,omitempty"`
	EthAmount   sdkmath.Int `json:"eth_amount"`
	TokenAmount sdkmath.Int `json:"token_amount"`
	PlatformFee sdkmath.Int `json:"platform_fee"`
	DevFee      sdkmath.Int `json:"dev_fee"`
	Timestamp   time.Time   `json:"timestamp"`
}
