package issuer

import (
	"fmt"

	restate "github.com/restatedev/sdk-go"

	"tokensale/bank"
	"tokensale/models"
)

// ServiceName is the virtual-object name under which Issuer is
// registered. Each object key is one issuer account owning a token
// ledger, an offer book and a seller registry.
const ServiceName = "Issuer"

const (
	stateKeyOwner    = "owner"
	stateKeyToken    = "token"
	stateKeyOffers   = "offers"
	stateKeySellers  = "sellers"
	stateKeyMetadata = "metadata"
)

type Issuer struct{}

// Init mints the total supply to the issuer's own ledger account and
// records the initializing identity as owner of the administrative surface.
func (Issuer) Init(ctx restate.ObjectContext, req models.InitRequest) error {
	owner, err := restate.Get[string](ctx, stateKeyOwner)
	if err != nil {
		return err
	}
	if owner != "" {
		return restate.TerminalError(fmt.Errorf("issuer %q is already initialized", restate.Key(ctx)), 409)
	}
	if req.Caller == "" {
		return restate.TerminalError(fmt.Errorf("an owning identity is required"), 400)
	}

	issuerID := restate.Key(ctx)
	restate.Set(ctx, stateKeyOwner, req.Caller)
	restate.Set(ctx, stateKeyToken, newLedger(issuerID, req.TotalSupply))
	restate.Set(ctx, stateKeyMetadata, req.Metadata)

	ctx.Log().Info("Issuer initialized",
		"issuer", issuerID,
		"owner", req.Caller,
		"totalSupply", req.TotalSupply,
		"symbol", req.Metadata.Symbol)
	return nil
}

// Metadata returns the token metadata.
func (Issuer) Metadata(ctx restate.ObjectSharedContext, _ restate.Void) (models.TokenMetadata, error) {
	return restate.Get[models.TokenMetadata](ctx, stateKeyMetadata)
}

// CreateOffer lists supply at a unit price, or overwrites the existing
// listing at that price keeping its position. The listed total may never
// exceed the unallocated token supply.
func (Issuer) CreateOffer(ctx restate.ObjectContext, req models.CreateOfferRequest) error {
	token, err := requireOwner(ctx, req.Caller)
	if err != nil {
		return err
	}
	offers, err := restate.Get[[]models.Offer](ctx, stateKeyOffers)
	if err != nil {
		return err
	}

	listed := uint64(0)
	for _, o := range offers {
		if o.Price != req.Price {
			listed += o.Supply
		}
	}
	available := token.TotalSupply - token.Sold - listed
	if req.Supply > available {
		return models.ErrInsufficientSupply(req.Supply, available)
	}

	if i := findOffer(offers, req.Price); i >= 0 {
		offers[i].Supply = req.Supply
	} else {
		offers = append(offers, models.Offer{Price: req.Price, Supply: req.Supply})
	}
	restate.Set(ctx, stateKeyOffers, offers)

	ctx.Log().Info("Offer created",
		"issuer", restate.Key(ctx),
		"price", req.Price,
		"supply", req.Supply)
	return nil
}

// RemoveOffer delists the offer at a price. Removing a missing offer is
// a no-op.
func (Issuer) RemoveOffer(ctx restate.ObjectContext, req models.RemoveOfferRequest) error {
	if _, err := requireOwner(ctx, req.Caller); err != nil {
		return err
	}
	offers, err := restate.Get[[]models.Offer](ctx, stateKeyOffers)
	if err != nil {
		return err
	}

	if i := findOffer(offers, req.Price); i >= 0 {
		offers = append(offers[:i], offers[i+1:]...)
		restate.Set(ctx, stateKeyOffers, offers)
		ctx.Log().Info("Offer removed", "issuer", restate.Key(ctx), "price", req.Price)
	}
	return nil
}

// GetOffer returns the remaining supply at a price, or nil when no offer
// exists. Absence is not a failure here, unlike GetSeller.
func (Issuer) GetOffer(ctx restate.ObjectSharedContext, price uint64) (*uint64, error) {
	offers, err := restate.Get[[]models.Offer](ctx, stateKeyOffers)
	if err != nil {
		return nil, err
	}
	if i := findOffer(offers, price); i >= 0 {
		return &offers[i].Supply, nil
	}
	return nil, nil
}

// ListOffers returns a page of the offer book in insertion order.
func (Issuer) ListOffers(ctx restate.ObjectSharedContext, p models.Page) ([]models.Offer, error) {
	offers, err := restate.Get[[]models.Offer](ctx, stateKeyOffers)
	if err != nil {
		return nil, err
	}
	return page(offers, p.FromIndex, p.Limit), nil
}

// RegisterSeller authorizes an exchange to broker sales for a fee share.
func (Issuer) RegisterSeller(ctx restate.ObjectContext, req models.RegisterSellerRequest) error {
	if _, err := requireOwner(ctx, req.Caller); err != nil {
		return err
	}
	sellers, err := restate.Get[[]models.Seller](ctx, stateKeySellers)
	if err != nil {
		return err
	}

	if i := findSeller(sellers, req.SellerID); i >= 0 {
		sellers[i].FeePct = req.FeePct
	} else {
		sellers = append(sellers, models.Seller{SellerID: req.SellerID, FeePct: req.FeePct})
	}
	restate.Set(ctx, stateKeySellers, sellers)

	ctx.Log().Info("Seller registered",
		"issuer", restate.Key(ctx),
		"seller", req.SellerID,
		"feePct", req.FeePct)
	return nil
}

// RemoveSeller revokes a seller authorization. No-op on a missing entry.
func (Issuer) RemoveSeller(ctx restate.ObjectContext, req models.RemoveSellerRequest) error {
	if _, err := requireOwner(ctx, req.Caller); err != nil {
		return err
	}
	sellers, err := restate.Get[[]models.Seller](ctx, stateKeySellers)
	if err != nil {
		return err
	}

	if i := findSeller(sellers, req.SellerID); i >= 0 {
		sellers = append(sellers[:i], sellers[i+1:]...)
		restate.Set(ctx, stateKeySellers, sellers)
		ctx.Log().Info("Seller removed", "issuer", restate.Key(ctx), "seller", req.SellerID)
	}
	return nil
}

// GetSeller returns the fee percentage of an authorized seller. An
// unknown seller is a hard failure so that an orchestrator's join sees a
// Failure outcome at the authorization position.
func (Issuer) GetSeller(ctx restate.ObjectSharedContext, sellerID string) (float64, error) {
	sellers, err := restate.Get[[]models.Seller](ctx, stateKeySellers)
	if err != nil {
		return 0, err
	}
	if i := findSeller(sellers, sellerID); i >= 0 {
		return sellers[i].FeePct, nil
	}
	return 0, models.ErrNotAuthorized(sellerID)
}

// ListSellers returns a page of the seller registry in insertion order.
func (Issuer) ListSellers(ctx restate.ObjectSharedContext, p models.Page) ([]models.Seller, error) {
	sellers, err := restate.Get[[]models.Seller](ctx, stateKeySellers)
	if err != nil {
		return nil, err
	}
	return page(sellers, p.FromIndex, p.Limit), nil
}

// RegisterStorage opens a ledger account for a buyer so it can receive
// tokens.
func (Issuer) RegisterStorage(ctx restate.ObjectContext, account string) error {
	token, err := restate.Get[*ledger](ctx, stateKeyToken)
	if err != nil {
		return err
	}
	if token == nil {
		return restate.TerminalError(fmt.Errorf("issuer %q is not initialized", restate.Key(ctx)), 409)
	}
	token.register(account)
	restate.Set(ctx, stateKeyToken, token)

	ctx.Log().Info("Storage registered", "issuer", restate.Key(ctx), "account", account)
	return nil
}

// HasStorage reports whether an account is registered to receive tokens.
// A missing registration is a hard failure, matching the orchestration
// protocol's Failure-outcome convention.
func (Issuer) HasStorage(ctx restate.ObjectSharedContext, account string) (bool, error) {
	token, err := restate.Get[*ledger](ctx, stateKeyToken)
	if err != nil {
		return false, err
	}
	if token == nil || !token.hasStorage(account) {
		return false, models.ErrNoStorage(account)
	}
	return true, nil
}

// BalanceOf returns an account's token balance.
func (Issuer) BalanceOf(ctx restate.ObjectSharedContext, q models.BalanceQuery) (uint64, error) {
	token, err := restate.Get[*ledger](ctx, stateKeyToken)
	if err != nil {
		return 0, err
	}
	if token == nil {
		return 0, nil
	}
	return token.balanceOf(q.Account), nil
}

// TransferTokens sells tokens from the offer at the given price through
// an authorized exchange: it credits the buyer on the ledger, debits the
// offer's remaining supply, pays the exchange its fee in native currency
// and returns the fee amount.
func (Issuer) TransferTokens(ctx restate.ObjectContext, req models.TransferTokensRequest) (uint64, error) {
	issuerID := restate.Key(ctx)

	sellers, err := restate.Get[[]models.Seller](ctx, stateKeySellers)
	if err != nil {
		return 0, err
	}
	si := findSeller(sellers, req.Exchange)
	if si < 0 {
		return 0, models.ErrNotAuthorized(req.Exchange)
	}

	offers, err := restate.Get[[]models.Offer](ctx, stateKeyOffers)
	if err != nil {
		return 0, err
	}
	oi := findOffer(offers, req.Price)
	if oi < 0 {
		return 0, restate.TerminalError(fmt.Errorf("no offer at price %d", req.Price), 404)
	}
	if req.Quantity > offers[oi].Supply {
		return 0, models.ErrInsufficientSupply(req.Quantity, offers[oi].Supply)
	}

	token, err := restate.Get[*ledger](ctx, stateKeyToken)
	if err != nil {
		return 0, err
	}
	if token == nil {
		return 0, restate.TerminalError(fmt.Errorf("issuer %q is not initialized", issuerID), 409)
	}
	if !token.hasStorage(req.Buyer) {
		return 0, models.ErrNoStorage(req.Buyer)
	}

	if err := token.transfer(issuerID, req.Buyer, req.Quantity); err != nil {
		return 0, restate.TerminalError(err, 409)
	}
	offers[oi].Supply -= req.Quantity
	token.Sold += req.Quantity

	restate.Set(ctx, stateKeyToken, token)
	restate.Set(ctx, stateKeyOffers, offers)

	fee := models.Fee(req.Price, req.Quantity, sellers[si].FeePct)
	bank.Transfer(ctx, issuerID, req.Exchange, fee)

	ctx.Log().Info("Tokens sold",
		"issuer", issuerID,
		"exchange", req.Exchange,
		"buyer", req.Buyer,
		"price", req.Price,
		"quantity", req.Quantity,
		"fee", fee,
		"memo", req.Message)
	return fee, nil
}

// ReclaimTokens is the compensating transfer for a purchase whose token
// leg committed while settlement aborted: it moves the tokens back from
// the buyer and restores the offer. Restricted to the owner and to
// authorized sellers.
func (Issuer) ReclaimTokens(ctx restate.ObjectContext, req models.ReclaimTokensRequest) error {
	issuerID := restate.Key(ctx)

	owner, err := restate.Get[string](ctx, stateKeyOwner)
	if err != nil {
		return err
	}
	sellers, err := restate.Get[[]models.Seller](ctx, stateKeySellers)
	if err != nil {
		return err
	}
	if req.Caller != owner && findSeller(sellers, req.Caller) < 0 {
		return models.ErrPermissionDenied(req.Caller)
	}

	token, err := restate.Get[*ledger](ctx, stateKeyToken)
	if err != nil {
		return err
	}
	if token == nil {
		return restate.TerminalError(fmt.Errorf("issuer %q is not initialized", issuerID), 409)
	}
	if token.Sold < req.Quantity {
		return restate.TerminalError(fmt.Errorf("reclaiming %d exceeds %d sold", req.Quantity, token.Sold), 409)
	}
	if err := token.transfer(req.Buyer, issuerID, req.Quantity); err != nil {
		return restate.TerminalError(err, 409)
	}
	token.Sold -= req.Quantity

	offers, err := restate.Get[[]models.Offer](ctx, stateKeyOffers)
	if err != nil {
		return err
	}
	if i := findOffer(offers, req.Price); i >= 0 {
		offers[i].Supply += req.Quantity
	} else {
		offers = append(offers, models.Offer{Price: req.Price, Supply: req.Quantity})
	}

	restate.Set(ctx, stateKeyToken, token)
	restate.Set(ctx, stateKeyOffers, offers)

	ctx.Log().Info("Tokens reclaimed",
		"issuer", issuerID,
		"caller", req.Caller,
		"buyer", req.Buyer,
		"price", req.Price,
		"quantity", req.Quantity)
	return nil
}

// requireOwner gates the administrative surface: the acting identity
// must match the stored owning identity.
func requireOwner(ctx restate.ObjectContext, caller string) (*ledger, error) {
	owner, err := restate.Get[string](ctx, stateKeyOwner)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, restate.TerminalError(fmt.Errorf("issuer %q is not initialized", restate.Key(ctx)), 409)
	}
	if caller != owner {
		return nil, models.ErrPermissionDenied(caller)
	}
	return restate.Get[*ledger](ctx, stateKeyToken)
}

func findOffer(offers []models.Offer, price uint64) int {
	for i, o := range offers {
		if o.Price == price {
			return i
		}
	}
	return -1
}

func findSeller(sellers []models.Seller, id string) int {
	for i, s := range sellers {
		if s.SellerID == id {
			return i
		}
	}
	return -1
}

// page slices a listing: out-of-range indices yield an empty page.
func page[T any](items []T, from, limit uint64) []T {
	if from >= uint64(len(items)) {
		return []T{}
	}
	end := from + limit
	if end > uint64(len(items)) {
		end = uint64(len(items))
	}
	return items[from:end]
}
