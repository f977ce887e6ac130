package bank

import (
	"testing"

	restate "github.com/restatedev/sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokensale/internal/statemock"
	"tokensale/models"
)

func TestDepositAndBalance(t *testing.T) {
	ctx, _ := statemock.New(t, "alice")

	view, err := Bank{}.Deposit(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, models.BalanceView{Spendable: 500}, view)

	view, err = Bank{}.Deposit(ctx, 250)
	require.NoError(t, err)
	assert.Equal(t, uint64(750), view.Spendable)

	view, err = Bank{}.Balance(ctx, restate.Void{})
	require.NoError(t, err)
	assert.Equal(t, models.BalanceView{Spendable: 750}, view)
}

func TestLockAndUnlock(t *testing.T) {
	ctx, _ := statemock.New(t, "alice")

	_, err := Bank{}.Deposit(ctx, 100)
	require.NoError(t, err)

	view, err := Bank{}.Lock(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, models.BalanceView{Spendable: 40, Locked: 60}, view)

	_, err = Bank{}.Lock(ctx, 41)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")

	view, err = Bank{}.Unlock(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, models.BalanceView{Spendable: 100}, view)

	_, err = Bank{}.Unlock(ctx, 1)
	require.Error(t, err)
}

func TestCredit(t *testing.T) {
	ctx, _ := statemock.New(t, "alice")

	require.NoError(t, Bank{}.Credit(ctx, 300))

	view, err := Bank{}.Balance(ctx, restate.Void{})
	require.NoError(t, err)
	assert.Equal(t, uint64(300), view.Spendable)
}

func TestTransferOut_DebitsSenderAndForwards(t *testing.T) {
	ctx, mctx := statemock.New(t, "alice")

	_, err := Bank{}.Deposit(ctx, 500)
	require.NoError(t, err)

	mctx.EXPECT().MockObjectClient(ServiceName, "bob", "Credit").MockSend(uint64(200))

	require.NoError(t, Bank{}.TransferOut(ctx, models.TransferRequest{To: "bob", Amount: 200}))

	view, err := Bank{}.Balance(ctx, restate.Void{})
	require.NoError(t, err)
	assert.Equal(t, uint64(300), view.Spendable)
}

// Fire and forget: a transfer the sender cannot cover is dropped, not
// reported, and leaves the balance untouched. No credit is sent.
func TestTransferOut_DropsOnInsufficientBalance(t *testing.T) {
	ctx, _ := statemock.New(t, "alice")

	_, err := Bank{}.Deposit(ctx, 100)
	require.NoError(t, err)

	require.NoError(t, Bank{}.TransferOut(ctx, models.TransferRequest{To: "bob", Amount: 200}))

	view, err := Bank{}.Balance(ctx, restate.Void{})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), view.Spendable)
}

func TestTransferOut_DropsOnInvalidTarget(t *testing.T) {
	ctx, _ := statemock.New(t, "alice")

	_, err := Bank{}.Deposit(ctx, 100)
	require.NoError(t, err)

	require.NoError(t, Bank{}.TransferOut(ctx, models.TransferRequest{To: "", Amount: 50}))

	view, err := Bank{}.Balance(ctx, restate.Void{})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), view.Spendable)
}

// Transfer schedules the debit on the sending account without waiting
// for any outcome.
func TestTransfer_SchedulesDebit(t *testing.T) {
	ctx, mctx := statemock.New(t, "ico.exchange")

	mctx.EXPECT().MockObjectClient(ServiceName, "ico.exchange", "TransferOut").
		MockSend(models.TransferRequest{To: "token.issuer", Amount: 42})

	Transfer(ctx, "ico.exchange", "token.issuer", 42)
}
