package exchange

import "tokensale/models"

// Settlement positions. The join delivers outcomes in this order and the
// settlement inspects them in this order.
const (
	posSellerAuth    = 0
	posBuyerStorage  = 1
	posTokenTransfer = 2
)

// callOutcome is the result of one remote call of the fan-out: either a
// success with its position's payload, or a failure marker. It is
// consumed exactly once by the settlement.
type callOutcome struct {
	OK     bool    `json:"ok"`
	FeePct float64 `json:"feePct,omitempty"` // payload of the seller-authorization call
	Fee    uint64  `json:"fee,omitempty"`    // payload of the token-transfer call
}

// settlement is the decision the callback takes over a joined outcome
// triple. Pay means exactly one native transfer of Amount to the issuer.
type settlement struct {
	Pay     bool
	Amount  uint64
	Fee     uint64
	Reason  string
	Partial bool
}

// decideSettlement inspects the joined outcomes in positional order and
// decides whether to settle or abort. Any failure aborts with that
// position's reason and issues no currency movement. An abort cannot
// reverse a token transfer that already committed issuer-side: that case
// is reported as Partial, never masked.
func decideSettlement(reserved uint64, outcomes []callOutcome) (settlement, error) {
	if len(outcomes) != 3 {
		return settlement{}, models.ErrInternalProtocolViolation(len(outcomes))
	}

	// Tokens moved on the issuer iff the transfer call itself succeeded,
	// regardless of how the validation calls raced.
	partial := outcomes[posTokenTransfer].OK

	if !outcomes[posSellerAuth].OK {
		return settlement{Reason: models.ReasonSellerNotAuthorized, Partial: partial}, nil
	}
	if !outcomes[posBuyerStorage].OK {
		return settlement{Reason: models.ReasonBuyerStorageMissing, Partial: partial}, nil
	}
	if !outcomes[posTokenTransfer].OK {
		return settlement{Reason: models.ReasonTokenTransferFailed}, nil
	}

	return settlement{
		Pay:    true,
		Amount: reserved,
		Fee:    outcomes[posTokenTransfer].Fee,
	}, nil
}
