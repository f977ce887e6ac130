package exchange

import (
	"fmt"
	"math"
	"strings"

	restate "github.com/restatedev/sdk-go"

	"tokensale/bank"
	"tokensale/issuer"
	"tokensale/models"
)

// ServiceName is the virtual-object name under which Exchange is
// registered. Each object key is one exchange account. The exchange owns
// no domain state of its own beyond its native balance and the durable
// records of the orchestrations it ran: it is purely a coordinator.
const ServiceName = "Exchange"

const purchaseKeyPrefix = "purchase:"

type Exchange struct{}

// InitiatePurchase is the buyer-facing entry point. It checks the
// exchange's own native balance, fans out three concurrent calls to the
// issuer (seller authorization, buyer storage, token transfer), joins
// their outcomes and settles. All three calls are always dispatched: the
// token transfer races the validations against the issuer's state, so an
// abort here cannot assume the transfer did not commit.
func (Exchange) InitiatePurchase(ctx restate.ObjectContext, req models.PurchaseRequest) (models.PurchaseResult, error) {
	self := restate.Key(ctx)

	cost := models.Payment(req.UnitPrice, req.Quantity)
	required := cost + models.BalanceReserve
	if required < cost {
		required = math.MaxUint64
	}
	balance, err := restate.Object[models.BalanceView](ctx, bank.ServiceName, self, "Balance").
		Request(restate.Void{})
	if err != nil {
		return models.PurchaseResult{}, err
	}
	available := balance.Spendable + balance.Locked
	if available <= required {
		return models.PurchaseResult{}, models.ErrInsufficientBalance(required, available)
	}

	purchaseID := fmt.Sprintf("PUR_%s", restate.UUID(ctx).String()[:8])
	record := models.PurchaseRecord{
		PurchaseID: purchaseID,
		IssuerID:   req.IssuerID,
		BuyerID:    req.BuyerID,
		UnitPrice:  req.UnitPrice,
		Quantity:   req.Quantity,
		Reserved:   cost,
		State:      models.PurchaseDispatched,
	}
	restate.Set(ctx, purchaseKeyPrefix+purchaseID, record)

	ctx.Log().Info("Purchase dispatched",
		"purchaseId", purchaseID,
		"issuer", req.IssuerID,
		"buyer", req.BuyerID,
		"price", req.UnitPrice,
		"quantity", req.Quantity)

	sellerFut := restate.Object[float64](ctx, issuer.ServiceName, req.IssuerID, "GetSeller").
		RequestFuture(self)
	storageFut := restate.Object[bool](ctx, issuer.ServiceName, req.IssuerID, "HasStorage").
		RequestFuture(req.BuyerID)
	transferFut := restate.Object[uint64](ctx, issuer.ServiceName, req.IssuerID, "TransferTokens").
		RequestFuture(models.TransferTokensRequest{
			Exchange: self,
			Buyer:    req.BuyerID,
			Price:    req.UnitPrice,
			Quantity: req.Quantity,
			Message:  req.Message,
		})

	// Drain the join first: a non-nil error here is a cancellation of the
	// whole invocation, never a single call failing. Per-call failures
	// surface on each future's Response below.
	for _, err := range restate.Wait(ctx, sellerFut, storageFut, transferFut) {
		if err != nil {
			return models.PurchaseResult{}, err
		}
	}

	outcomes := make([]callOutcome, 3)
	if feePct, err := sellerFut.Response(); err != nil {
		ctx.Log().Warn("Seller authorization failed", "purchaseId", purchaseID, "error", err)
	} else {
		outcomes[posSellerAuth] = callOutcome{OK: true, FeePct: feePct}
	}
	if _, err := storageFut.Response(); err != nil {
		ctx.Log().Warn("Buyer storage check failed", "purchaseId", purchaseID, "error", err)
	} else {
		outcomes[posBuyerStorage] = callOutcome{OK: true}
	}
	if fee, err := transferFut.Response(); err != nil {
		ctx.Log().Warn("Token transfer failed", "purchaseId", purchaseID, "error", err)
	} else {
		outcomes[posTokenTransfer] = callOutcome{OK: true, Fee: fee}
	}

	record.State = models.PurchaseJoined
	restate.Set(ctx, purchaseKeyPrefix+purchaseID, record)

	return settle(ctx, record, outcomes)
}

// settle is the continuation run after the join: it decides over the
// outcome triple, moves the reserved payment on full success and
// advances the saga record. Aborting reverts only this callback's own
// pending effects; a token transfer that already committed issuer-side
// leaves the record partially aborted for later compensation.
func settle(ctx restate.ObjectContext, record models.PurchaseRecord, outcomes []callOutcome) (models.PurchaseResult, error) {
	decision, err := decideSettlement(record.Reserved, outcomes)
	if err != nil {
		return models.PurchaseResult{}, err
	}

	if decision.Pay {
		bank.Transfer(ctx, restate.Key(ctx), record.IssuerID, decision.Amount)

		record.State = models.PurchaseSettled
		record.Fee = decision.Fee
		restate.Set(ctx, purchaseKeyPrefix+record.PurchaseID, record)

		ctx.Log().Info("Purchase settled",
			"purchaseId", record.PurchaseID,
			"issuer", record.IssuerID,
			"paid", decision.Amount,
			"fee", decision.Fee)

		return models.PurchaseResult{
			PurchaseID: record.PurchaseID,
			Status:     models.PurchaseSettled,
			Fee:        decision.Fee,
		}, nil
	}

	record.State = models.PurchaseAborted
	record.Reason = decision.Reason
	if decision.Partial {
		record.State = models.PurchaseAbortedPartial
		ctx.Log().Error("Purchase aborted after token transfer committed; compensation required",
			"purchaseId", record.PurchaseID,
			"issuer", record.IssuerID,
			"buyer", record.BuyerID,
			"reason", decision.Reason)
	} else {
		ctx.Log().Warn("Purchase aborted",
			"purchaseId", record.PurchaseID,
			"reason", decision.Reason)
	}
	restate.Set(ctx, purchaseKeyPrefix+record.PurchaseID, record)

	return models.PurchaseResult{
		PurchaseID: record.PurchaseID,
		Status:     models.PurchaseAborted,
		Reason:     decision.Reason,
	}, nil
}

// GetPurchase returns the durable record of one orchestration.
func (Exchange) GetPurchase(ctx restate.ObjectSharedContext, purchaseID string) (models.PurchaseRecord, error) {
	record, err := restate.Get[*models.PurchaseRecord](ctx, purchaseKeyPrefix+purchaseID)
	if err != nil {
		return models.PurchaseRecord{}, err
	}
	if record == nil {
		return models.PurchaseRecord{}, restate.TerminalError(fmt.Errorf("unknown purchase %q", purchaseID), 404)
	}
	return *record, nil
}

// ListPartialAborts is the reconciliation report: every purchase whose
// token leg committed while settlement aborted and which has not been
// compensated yet.
func (Exchange) ListPartialAborts(ctx restate.ObjectSharedContext, _ restate.Void) ([]models.PurchaseRecord, error) {
	keys, err := restate.Keys(ctx)
	if err != nil {
		return nil, err
	}

	partial := []models.PurchaseRecord{}
	for _, key := range keys {
		if !strings.HasPrefix(key, purchaseKeyPrefix) {
			continue
		}
		record, err := restate.Get[models.PurchaseRecord](ctx, key)
		if err != nil {
			return nil, err
		}
		if record.State == models.PurchaseAbortedPartial {
			partial = append(partial, record)
		}
	}
	return partial, nil
}

// Compensate runs the explicit compensating transfer for a partially
// aborted purchase: the issuer reclaims the tokens and the record is
// closed. Operator-invoked; the protocol never compensates on its own.
func (Exchange) Compensate(ctx restate.ObjectContext, purchaseID string) (models.PurchaseRecord, error) {
	record, err := restate.Get[*models.PurchaseRecord](ctx, purchaseKeyPrefix+purchaseID)
	if err != nil {
		return models.PurchaseRecord{}, err
	}
	if record == nil {
		return models.PurchaseRecord{}, restate.TerminalError(fmt.Errorf("unknown purchase %q", purchaseID), 404)
	}
	if record.State != models.PurchaseAbortedPartial {
		return models.PurchaseRecord{}, restate.TerminalError(
			fmt.Errorf("purchase %q is %s, only partially aborted purchases can be compensated", purchaseID, record.State), 409)
	}

	_, err = restate.Object[restate.Void](ctx, issuer.ServiceName, record.IssuerID, "ReclaimTokens").
		Request(models.ReclaimTokensRequest{
			Caller:   restate.Key(ctx),
			Buyer:    record.BuyerID,
			Price:    record.UnitPrice,
			Quantity: record.Quantity,
		})
	if err != nil {
		return models.PurchaseRecord{}, err
	}

	record.State = models.PurchaseCompensated
	restate.Set(ctx, purchaseKeyPrefix+purchaseID, *record)

	ctx.Log().Info("Purchase compensated",
		"purchaseId", purchaseID,
		"issuer", record.IssuerID,
		"buyer", record.BuyerID,
		"quantity", record.Quantity)
	return *record, nil
}

// GetOffer relays a single-offer read to an issuer.
func (Exchange) GetOffer(ctx restate.ObjectSharedContext, q models.OfferQuery) (*uint64, error) {
	return restate.Object[*uint64](ctx, issuer.ServiceName, q.IssuerID, "GetOffer").
		Request(q.Price)
}

// ListOffers relays a paginated offer-book read to an issuer.
func (Exchange) ListOffers(ctx restate.ObjectSharedContext, q models.OffersQuery) ([]models.Offer, error) {
	return restate.Object[[]models.Offer](ctx, issuer.ServiceName, q.IssuerID, "ListOffers").
		Request(models.Page{FromIndex: q.FromIndex, Limit: q.Limit})
}
