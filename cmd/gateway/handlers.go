package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	restate "github.com/restatedev/sdk-go"
	restateingress "github.com/restatedev/sdk-go/ingress"
	"github.com/rs/zerolog"

	"tokensale/bank"
	"tokensale/exchange"
	"tokensale/issuer"
	"tokensale/models"
)

type gateway struct {
	client *restateingress.Client
	logger zerolog.Logger
}

func (g *gateway) handleInitIssuer(w http.ResponseWriter, r *http.Request) {
	issuerID := chi.URLParam(r, "issuerID")

	var req models.InitRequest
	if !readJSON(w, r, &req) {
		return
	}

	_, err := restateingress.Object[models.InitRequest, restate.Void](
		g.client, issuer.ServiceName, issuerID, "Init").Request(r.Context(), req)
	if err != nil {
		g.callFailed(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (g *gateway) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	issuerID := chi.URLParam(r, "issuerID")

	var req models.CreateOfferRequest
	if !readJSON(w, r, &req) {
		return
	}

	_, err := restateingress.Object[models.CreateOfferRequest, restate.Void](
		g.client, issuer.ServiceName, issuerID, "CreateOffer").Request(r.Context(), req)
	if err != nil {
		g.callFailed(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (g *gateway) handleRemoveOffer(w http.ResponseWriter, r *http.Request) {
	issuerID := chi.URLParam(r, "issuerID")
	price, ok := parseUint(w, chi.URLParam(r, "price"))
	if !ok {
		return
	}

	req := models.RemoveOfferRequest{Caller: r.URL.Query().Get("caller"), Price: price}
	_, err := restateingress.Object[models.RemoveOfferRequest, restate.Void](
		g.client, issuer.ServiceName, issuerID, "RemoveOffer").Request(r.Context(), req)
	if err != nil {
		g.callFailed(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *gateway) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	issuerID := chi.URLParam(r, "issuerID")
	price, ok := parseUint(w, chi.URLParam(r, "price"))
	if !ok {
		return
	}

	supply, err := restateingress.Object[uint64, *uint64](
		g.client, issuer.ServiceName, issuerID, "GetOffer").Request(r.Context(), price)
	if err != nil {
		g.callFailed(w, err)
		return
	}
	if supply == nil {
		http.Error(w, "no offer at this price", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, models.Offer{Price: price, Supply: *supply})
}

func (g *gateway) handleListOffers(w http.ResponseWriter, r *http.Request) {
	issuerID := chi.URLParam(r, "issuerID")

	page := pageFromQuery(r)
	offers, err := restateingress.Object[models.Page, []models.Offer](
		g.client, issuer.ServiceName, issuerID, "ListOffers").Request(r.Context(), page)
	if err != nil {
		g.callFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, offers)
}

func (g *gateway) handleRegisterSeller(w http.ResponseWriter, r *http.Request) {
	issuerID := chi.URLParam(r, "issuerID")

	var req models.RegisterSellerRequest
	if !readJSON(w, r, &req) {
		return
	}

	_, err := restateingress.Object[models.RegisterSellerRequest, restate.Void](
		g.client, issuer.ServiceName, issuerID, "RegisterSeller").Request(r.Context(), req)
	if err != nil {
		g.callFailed(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (g *gateway) handleRemoveSeller(w http.ResponseWriter, r *http.Request) {
	issuerID := chi.URLParam(r, "issuerID")

	req := models.RemoveSellerRequest{
		Caller:   r.URL.Query().Get("caller"),
		SellerID: chi.URLParam(r, "sellerID"),
	}
	_, err := restateingress.Object[models.RemoveSellerRequest, restate.Void](
		g.client, issuer.ServiceName, issuerID, "RemoveSeller").Request(r.Context(), req)
	if err != nil {
		g.callFailed(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *gateway) handleGetSeller(w http.ResponseWriter, r *http.Request) {
	issuerID := chi.URLParam(r, "issuerID")
	sellerID := chi.URLParam(r, "sellerID")

	feePct, err := restateingress.Object[string, float64](
		g.client, issuer.ServiceName, issuerID, "GetSeller").Request(r.Context(), sellerID)
	if err != nil {
		g.callFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.Seller{SellerID: sellerID, FeePct: feePct})
}

func (g *gateway) handleListSellers(w http.ResponseWriter, r *http.Request) {
	issuerID := chi.URLParam(r, "issuerID")

	page := pageFromQuery(r)
	sellers, err := restateingress.Object[models.Page, []models.Seller](
		g.client, issuer.ServiceName, issuerID, "ListSellers").Request(r.Context(), page)
	if err != nil {
		g.callFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sellers)
}

func (g *gateway) handleRegisterStorage(w http.ResponseWriter, r *http.Request) {
	issuerID := chi.URLParam(r, "issuerID")

	var req struct {
		Account string `json:"account"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	_, err := restateingress.Object[string, restate.Void](
		g.client, issuer.ServiceName, issuerID, "RegisterStorage").Request(r.Context(), req.Account)
	if err != nil {
		g.callFailed(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (g *gateway) handleBalanceOf(w http.ResponseWriter, r *http.Request) {
	issuerID := chi.URLParam(r, "issuerID")
	account := chi.URLParam(r, "account")

	balance, err := restateingress.Object[models.BalanceQuery, uint64](
		g.client, issuer.ServiceName, issuerID, "BalanceOf").
		Request(r.Context(), models.BalanceQuery{Account: account})
	if err != nil {
		g.callFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

func (g *gateway) handleInitiatePurchase(w http.ResponseWriter, r *http.Request) {
	exchangeID := chi.URLParam(r, "exchangeID")

	var req models.PurchaseRequest
	if !readJSON(w, r, &req) {
		return
	}

	// Retried submissions with the same key resolve to the same
	// orchestration instead of dispatching a second fan-out.
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	result, err := restateingress.Object[models.PurchaseRequest, models.PurchaseResult](
		g.client, exchange.ServiceName, exchangeID, "InitiatePurchase").
		Request(r.Context(), req, restate.WithIdempotencyKey(idempotencyKey))
	if err != nil {
		g.callFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (g *gateway) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	exchangeID := chi.URLParam(r, "exchangeID")
	purchaseID := chi.URLParam(r, "purchaseID")

	record, err := restateingress.Object[string, models.PurchaseRecord](
		g.client, exchange.ServiceName, exchangeID, "GetPurchase").Request(r.Context(), purchaseID)
	if err != nil {
		g.callFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (g *gateway) handleCompensate(w http.ResponseWriter, r *http.Request) {
	exchangeID := chi.URLParam(r, "exchangeID")
	purchaseID := chi.URLParam(r, "purchaseID")

	record, err := restateingress.Object[string, models.PurchaseRecord](
		g.client, exchange.ServiceName, exchangeID, "Compensate").Request(r.Context(), purchaseID)
	if err != nil {
		g.callFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (g *gateway) handleListPartialAborts(w http.ResponseWriter, r *http.Request) {
	exchangeID := chi.URLParam(r, "exchangeID")

	records, err := restateingress.Object[restate.Void, []models.PurchaseRecord](
		g.client, exchange.ServiceName, exchangeID, "ListPartialAborts").
		Request(r.Context(), restate.Void{})
	if err != nil {
		g.callFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (g *gateway) handleDeposit(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	var req struct {
		Amount uint64 `json:"amount"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	balance, err := restateingress.Object[uint64, models.BalanceView](
		g.client, bank.ServiceName, account, "Deposit").Request(r.Context(), req.Amount)
	if err != nil {
		g.callFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

func (g *gateway) handleBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	balance, err := restateingress.Object[restate.Void, models.BalanceView](
		g.client, bank.ServiceName, account, "Balance").Request(r.Context(), restate.Void{})
	if err != nil {
		g.callFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

func (g *gateway) callFailed(w http.ResponseWriter, err error) {
	g.logger.Error().Err(err).Msg("restate call failed")
	http.Error(w, err.Error(), http.StatusBadGateway)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseUint(w http.ResponseWriter, s string) (uint64, bool) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		http.Error(w, "invalid numeric path parameter", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func pageFromQuery(r *http.Request) models.Page {
	page := models.Page{Limit: 50}
	if v, err := strconv.ParseUint(r.URL.Query().Get("from"), 10, 64); err == nil {
		page.FromIndex = v
	}
	if v, err := strconv.ParseUint(r.URL.Query().Get("limit"), 10, 64); err == nil && v > 0 {
		page.Limit = v
	}
	return page
}
