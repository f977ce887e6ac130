package models

import (
	"math"
	"math/bits"
)

// CurrencyScale is the number of native sub-units per whole currency unit.
// All native-currency amounts on the wire are expressed in sub-units.
const CurrencyScale uint64 = 1_000_000_000

// BalanceReserve is the fixed amount an exchange must keep on top of the
// purchase cost before it may dispatch an orchestration.
const BalanceReserve uint64 = 10 * CurrencyScale

// Purchase saga states.
const (
	PurchaseDispatched     = "dispatched"
	PurchaseJoined         = "joined"
	PurchaseSettled        = "settled"
	PurchaseAborted        = "aborted"
	PurchaseAbortedPartial = "aborted_partial"
	PurchaseCompensated    = "compensated"
)

// Abort reasons reported to the buyer's caller, one per settlement position.
const (
	ReasonSellerNotAuthorized = "SellerNotAuthorized"
	ReasonBuyerStorageMissing = "BuyerStorageMissing"
	ReasonTokenTransferFailed = "TokenTransferFailed"
)

// TokenMetadata describes the issuer's fungible token.
type TokenMetadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// InitRequest initializes an issuer: mints the total supply to the
// issuer's own ledger account and records the owning identity.
type InitRequest struct {
	Caller      string        `json:"caller"`
	TotalSupply uint64        `json:"totalSupply"`
	Metadata    TokenMetadata `json:"metadata"`
}

// CreateOfferRequest lists (or relists) supply at a unit price.
type CreateOfferRequest struct {
	Caller string `json:"caller"`
	Price  uint64 `json:"price"`
	Supply uint64 `json:"supply"`
}

// RemoveOfferRequest delists the offer at a unit price.
type RemoveOfferRequest struct {
	Caller string `json:"caller"`
	Price  uint64 `json:"price"`
}

// Offer is one listing: remaining token supply at a unit price.
type Offer struct {
	Price  uint64 `json:"price"`
	Supply uint64 `json:"supply"`
}

// Page selects a slice of a listing. Listings are stable in insertion
// order; an out-of-range FromIndex yields an empty page, never an error.
type Page struct {
	FromIndex uint64 `json:"fromIndex"`
	Limit     uint64 `json:"limit"`
}

// RegisterSellerRequest authorizes an exchange to broker sales for a fee.
type RegisterSellerRequest struct {
	Caller   string  `json:"caller"`
	SellerID string  `json:"sellerId"`
	FeePct   float64 `json:"feePct"`
}

// RemoveSellerRequest revokes a seller authorization.
type RemoveSellerRequest struct {
	Caller   string `json:"caller"`
	SellerID string `json:"sellerId"`
}

// Seller is one registry entry.
type Seller struct {
	SellerID string  `json:"sellerId"`
	FeePct   float64 `json:"feePct"`
}

// TransferTokensRequest is the issuer-side mutating call of a purchase:
// debit the offer, credit the buyer, return the fee owed to the exchange.
type TransferTokensRequest struct {
	Exchange string `json:"exchange"`
	Buyer    string `json:"buyer"`
	Price    uint64 `json:"price"`
	Quantity uint64 `json:"quantity"`
	Message  string `json:"message"`
}

// ReclaimTokensRequest is the compensating transfer for a purchase whose
// token leg committed but whose settlement aborted: it moves the tokens
// back and restores the offer.
type ReclaimTokensRequest struct {
	Caller   string `json:"caller"`
	Buyer    string `json:"buyer"`
	Price    uint64 `json:"price"`
	Quantity uint64 `json:"quantity"`
}

// BalanceQuery asks the issuer for a ledger balance.
type BalanceQuery struct {
	Account string `json:"account"`
}

// PurchaseRequest is the buyer-facing entry point on the exchange.
type PurchaseRequest struct {
	IssuerID  string `json:"issuerId"`
	BuyerID   string `json:"buyerId"`
	UnitPrice uint64 `json:"unitPrice"`
	Quantity  uint64 `json:"quantity"`
	Message   string `json:"message"`
}

// PurchaseResult is what the buyer's caller gets back: the fee earned on
// full success, or the specific abort reason.
type PurchaseResult struct {
	PurchaseID string `json:"purchaseId"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Fee        uint64 `json:"fee,omitempty"`
}

// PurchaseRecord is the durable saga record of one orchestration.
type PurchaseRecord struct {
	PurchaseID string `json:"purchaseId"`
	IssuerID   string `json:"issuerId"`
	BuyerID    string `json:"buyerId"`
	UnitPrice  uint64 `json:"unitPrice"`
	Quantity   uint64 `json:"quantity"`
	Reserved   uint64 `json:"reserved"`
	Fee        uint64 `json:"fee,omitempty"`
	State      string `json:"state"`
	Reason     string `json:"reason,omitempty"`
}

// OfferQuery addresses a single offer on an issuer (read relay).
type OfferQuery struct {
	IssuerID string `json:"issuerId"`
	Price    uint64 `json:"price"`
}

// OffersQuery addresses a listing page on an issuer (read relay).
type OffersQuery struct {
	IssuerID  string `json:"issuerId"`
	FromIndex uint64 `json:"fromIndex"`
	Limit     uint64 `json:"limit"`
}

// BalanceView is a native-currency account balance. Locked funds count
// toward the purchase precondition but cannot be spent directly.
type BalanceView struct {
	Spendable uint64 `json:"spendable"`
	Locked    uint64 `json:"locked"`
}

// TransferRequest moves native currency out of an account, fire and forget.
type TransferRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Payment is the native-currency cost of a purchase in sub-units. A
// product too large for uint64 saturates at the maximum instead of
// wrapping, so an oversized order can never price itself below a real
// balance.
func Payment(price, quantity uint64) uint64 {
	hi, units := bits.Mul64(price, quantity)
	if hi != 0 {
		return math.MaxUint64
	}
	hi, cost := bits.Mul64(units, CurrencyScale)
	if hi != 0 {
		return math.MaxUint64
	}
	return cost
}

// Fee is the exchange's cut of a purchase in sub-units. The percentage is
// kept floating-point for compatibility with observed fee values.
func Fee(price, quantity uint64, pct float64) uint64 {
	return uint64(float64(Payment(price, quantity)) * pct / 100)
}
