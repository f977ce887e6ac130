package exchange

import (
	"math"
	"testing"

	"github.com/google/uuid"
	restate "github.com/restatedev/sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokensale/bank"
	"tokensale/internal/statemock"
	"tokensale/issuer"
	"tokensale/models"
)

const (
	testExchange = "ico.exchange"
	testIssuer   = "token.issuer"
	testBuyer    = "bob"
)

func newTestRecord() models.PurchaseRecord {
	return models.PurchaseRecord{
		PurchaseID: "PUR_test1234",
		IssuerID:   testIssuer,
		BuyerID:    testBuyer,
		UnitPrice:  10,
		Quantity:   20,
		Reserved:   models.Payment(10, 20),
		State:      models.PurchaseJoined,
	}
}

// The full happy path: precheck passes, all three calls succeed, the
// reserved payment moves to the issuer and the record settles.
func TestInitiatePurchase_Settles(t *testing.T) {
	ctx, mctx := statemock.New(t, testExchange)

	mctx.EXPECT().MockObjectClient(bank.ServiceName, testExchange, "Balance").
		RequestAndReturn(restate.Void{}, models.BalanceView{Spendable: 300 * models.CurrencyScale}, nil)
	mctx.EXPECT().MockRand().UUID().Return(uuid.Max)

	sellerFut := mctx.EXPECT().MockObjectClient(issuer.ServiceName, testIssuer, "GetSeller").
		MockResponseFuture(testExchange)
	storageFut := mctx.EXPECT().MockObjectClient(issuer.ServiceName, testIssuer, "HasStorage").
		MockResponseFuture(testBuyer)
	transferFut := mctx.EXPECT().MockObjectClient(issuer.ServiceName, testIssuer, "TransferTokens").
		MockResponseFuture(models.TransferTokensRequest{
			Exchange: testExchange,
			Buyer:    testBuyer,
			Price:    10,
			Quantity: 20,
			Message:  "ico purchase",
		})

	waitIter := mctx.EXPECT().MockWaitIter(sellerFut, storageFut, transferFut)
	waitIter.Next().Return(true).Times(3)
	waitIter.Next().Return(false).Once()
	waitIter.Value().Return(sellerFut).Once()
	waitIter.Value().Return(storageFut).Once()
	waitIter.Value().Return(transferFut).Once()
	waitIter.Err().Return(nil).Once()

	sellerFut.EXPECT().ResponseAndReturn(5.0, nil)
	storageFut.EXPECT().ResponseAndReturn(true, nil)
	transferFut.EXPECT().ResponseAndReturn(10*models.CurrencyScale, nil)

	mctx.EXPECT().MockObjectClient(bank.ServiceName, testExchange, "TransferOut").
		MockSend(models.TransferRequest{To: testIssuer, Amount: 200 * models.CurrencyScale})

	result, err := Exchange{}.InitiatePurchase(ctx, models.PurchaseRequest{
		IssuerID:  testIssuer,
		BuyerID:   testBuyer,
		UnitPrice: 10,
		Quantity:  20,
		Message:   "ico purchase",
	})
	require.NoError(t, err)
	assert.Equal(t, "PUR_ffffffff", result.PurchaseID)
	assert.Equal(t, models.PurchaseSettled, result.Status)
	assert.Equal(t, 10*models.CurrencyScale, result.Fee)

	stored, err := Exchange{}.GetPurchase(ctx, result.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseSettled, stored.State)
	assert.Equal(t, 10*models.CurrencyScale, stored.Fee)
}

// A validation call failing while the token transfer committed must not
// settle: the record lands partially aborted and no payment moves.
func TestInitiatePurchase_FailedValidationAborts(t *testing.T) {
	ctx, mctx := statemock.New(t, testExchange)

	mctx.EXPECT().MockObjectClient(bank.ServiceName, testExchange, "Balance").
		RequestAndReturn(restate.Void{}, models.BalanceView{Spendable: 300 * models.CurrencyScale}, nil)
	mctx.EXPECT().MockRand().UUID().Return(uuid.Max)

	sellerFut := mctx.EXPECT().MockObjectClient(issuer.ServiceName, testIssuer, "GetSeller").
		MockResponseFuture(testExchange)
	storageFut := mctx.EXPECT().MockObjectClient(issuer.ServiceName, testIssuer, "HasStorage").
		MockResponseFuture(testBuyer)
	transferFut := mctx.EXPECT().MockObjectClient(issuer.ServiceName, testIssuer, "TransferTokens").
		MockResponseFuture(models.TransferTokensRequest{
			Exchange: testExchange,
			Buyer:    testBuyer,
			Price:    10,
			Quantity: 20,
		})

	waitIter := mctx.EXPECT().MockWaitIter(sellerFut, storageFut, transferFut)
	waitIter.Next().Return(true).Times(3)
	waitIter.Next().Return(false).Once()
	waitIter.Value().Return(sellerFut).Once()
	waitIter.Value().Return(storageFut).Once()
	waitIter.Value().Return(transferFut).Once()
	waitIter.Err().Return(nil).Once()

	sellerFut.EXPECT().ResponseAndReturn(5.0, nil)
	storageFut.EXPECT().ResponseAndReturn(false, models.ErrNoStorage(testBuyer))
	transferFut.EXPECT().ResponseAndReturn(10*models.CurrencyScale, nil)

	result, err := Exchange{}.InitiatePurchase(ctx, models.PurchaseRequest{
		IssuerID:  testIssuer,
		BuyerID:   testBuyer,
		UnitPrice: 10,
		Quantity:  20,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseAborted, result.Status)
	assert.Equal(t, models.ReasonBuyerStorageMissing, result.Reason)

	stored, err := Exchange{}.GetPurchase(ctx, result.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseAbortedPartial, stored.State)
}

func TestInitiatePurchase_InsufficientBalance(t *testing.T) {
	ctx, mctx := statemock.New(t, testExchange)

	// cost 200 plus the reserve of 10 demands strictly more than 210.
	mctx.EXPECT().MockObjectClient(bank.ServiceName, testExchange, "Balance").
		RequestAndReturn(restate.Void{}, models.BalanceView{Spendable: 210 * models.CurrencyScale}, nil)

	_, err := Exchange{}.InitiatePurchase(ctx, models.PurchaseRequest{
		IssuerID:  testIssuer,
		BuyerID:   testBuyer,
		UnitPrice: 10,
		Quantity:  20,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
}

// An order whose cost exceeds the representable range must fail the
// precheck outright; no balance can cover it and nothing is dispatched.
func TestInitiatePurchase_OversizedOrderFailsPrecheck(t *testing.T) {
	ctx, mctx := statemock.New(t, testExchange)

	mctx.EXPECT().MockObjectClient(bank.ServiceName, testExchange, "Balance").
		RequestAndReturn(restate.Void{}, models.BalanceView{Spendable: math.MaxUint64 - 1}, nil)

	_, err := Exchange{}.InitiatePurchase(ctx, models.PurchaseRequest{
		IssuerID:  testIssuer,
		BuyerID:   testBuyer,
		UnitPrice: 1 << 40,
		Quantity:  1 << 30,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestSettle_FullSuccess(t *testing.T) {
	ctx, mctx := statemock.New(t, testExchange)
	record := newTestRecord()

	mctx.EXPECT().MockObjectClient(bank.ServiceName, testExchange, "TransferOut").
		MockSend(models.TransferRequest{To: testIssuer, Amount: record.Reserved})

	result, err := settle(ctx, record, []callOutcome{
		{OK: true, FeePct: 5},
		{OK: true},
		{OK: true, Fee: 10 * models.CurrencyScale},
	})
	require.NoError(t, err)

	assert.Equal(t, models.PurchaseSettled, result.Status)
	assert.Equal(t, 10*models.CurrencyScale, result.Fee)
	assert.Empty(t, result.Reason)

	stored, err := Exchange{}.GetPurchase(ctx, record.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseSettled, stored.State)
	assert.Equal(t, 10*models.CurrencyScale, stored.Fee)
}

func TestSettle_AbortMovesNoPayment(t *testing.T) {
	ctx, _ := statemock.New(t, testExchange)
	record := newTestRecord()

	result, err := settle(ctx, record, []callOutcome{
		{},
		{OK: true},
		{},
	})
	require.NoError(t, err)

	assert.Equal(t, models.PurchaseAborted, result.Status)
	assert.Equal(t, models.ReasonSellerNotAuthorized, result.Reason)
	assert.Zero(t, result.Fee)

	stored, err := Exchange{}.GetPurchase(ctx, record.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseAborted, stored.State)
}

// Tokens moved issuer-side but the settlement aborted: the record must
// land in the partially-aborted state and show up on the reconciliation
// report until it is compensated.
func TestSettle_PartialAbortIsSurfaced(t *testing.T) {
	ctx, _ := statemock.New(t, testExchange)
	record := newTestRecord()

	result, err := settle(ctx, record, []callOutcome{
		{OK: true, FeePct: 5},
		{},
		{OK: true, Fee: 10 * models.CurrencyScale},
	})
	require.NoError(t, err)

	assert.Equal(t, models.PurchaseAborted, result.Status)
	assert.Equal(t, models.ReasonBuyerStorageMissing, result.Reason)

	stored, err := Exchange{}.GetPurchase(ctx, record.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseAbortedPartial, stored.State)

	partial, err := Exchange{}.ListPartialAborts(ctx, restate.Void{})
	require.NoError(t, err)
	require.Len(t, partial, 1)
	assert.Equal(t, record.PurchaseID, partial[0].PurchaseID)
}

func TestSettle_WrongOutcomeCount(t *testing.T) {
	ctx, _ := statemock.New(t, testExchange)

	_, err := settle(ctx, newTestRecord(), []callOutcome{{OK: true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal protocol violation")
}

func TestGetPurchase_Unknown(t *testing.T) {
	ctx, _ := statemock.New(t, testExchange)

	_, err := Exchange{}.GetPurchase(ctx, "PUR_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown purchase")
}

func TestCompensate_RequiresPartialAbort(t *testing.T) {
	ctx, _ := statemock.New(t, testExchange)

	record := newTestRecord()
	record.State = models.PurchaseSettled
	restate.Set(ctx, "purchase:"+record.PurchaseID, record)

	_, err := Exchange{}.Compensate(ctx, record.PurchaseID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only partially aborted")

	_, err = Exchange{}.Compensate(ctx, "PUR_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown purchase")
}

func TestCompensate_ClosesRecord(t *testing.T) {
	ctx, mctx := statemock.New(t, testExchange)

	record := newTestRecord()
	record.State = models.PurchaseAbortedPartial
	record.Reason = models.ReasonBuyerStorageMissing
	restate.Set(ctx, "purchase:"+record.PurchaseID, record)

	mctx.EXPECT().MockObjectClient(issuer.ServiceName, testIssuer, "ReclaimTokens").
		RequestAndReturn(models.ReclaimTokensRequest{
			Caller:   testExchange,
			Buyer:    testBuyer,
			Price:    10,
			Quantity: 20,
		}, restate.Void{}, nil)

	compensated, err := Exchange{}.Compensate(ctx, record.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCompensated, compensated.State)

	partial, err := Exchange{}.ListPartialAborts(ctx, restate.Void{})
	require.NoError(t, err)
	assert.Empty(t, partial)
}
