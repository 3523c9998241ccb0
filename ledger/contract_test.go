package ledger

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sellGoldTerms() ContractTerms {
	return ContractTerms{
		Inputs:  []Asset{{Name: "coin", Amount: NewAmount(100)}},
		Outputs: []Asset{{Name: "gold", Amount: NewAmount(10)}},
	}
}

// The full escrow round trip: a store offers gold for coin, a client buys,
// the store is paid and the escrow wallet ends up empty.
func TestContractRoundTrip(t *testing.T) {
	led, db := newTestLedger(t)

	_, err := led.AddAssets("store_1", []Asset{{Name: "gold", Amount: NewAmount(10)}})
	require.NoError(t, err)
	_, err = led.AddAssets("client_1", []Asset{{Name: "coin", Amount: NewAmount(150)}})
	require.NoError(t, err)

	contractID, err := led.CreateContract("store_1", sellGoldTerms(), "sig")
	require.NoError(t, err)

	// the outputs sit in escrow, not with the store
	balance, err := led.GetBalance("store_1")
	require.NoError(t, err)
	assert.Empty(t, balance)

	balance, err = led.GetBalance(contractID)
	require.NoError(t, err)
	assert.Equal(t, "10", balance["gold"].String())

	pendingTransaction(t, db, "tx_buy", "client_1", TransactionContract)
	err = led.ProcessContract("tx_buy", "client_1", contractID)
	require.NoError(t, err)

	balance, err = led.GetBalance("client_1")
	require.NoError(t, err)
	assert.Equal(t, "10", balance["gold"].String())
	assert.Equal(t, "50", balance["coin"].String())

	balance, err = led.GetBalance("store_1")
	require.NoError(t, err)
	assert.Equal(t, "100", balance["coin"].String())

	// the escrow wallet is drained
	balance, err = led.GetBalance(contractID)
	require.NoError(t, err)
	assert.Empty(t, balance)

	contract, err := led.GetContract(contractID)
	require.NoError(t, err)
	assert.True(t, contract.Executed)
}

// The owner buying back their own contract cancels it: the escrowed outputs
// return and nothing is paid.
func TestContractCancel(t *testing.T) {
	led, db := newTestLedger(t)

	_, err := led.AddAssets("store_1", []Asset{{Name: "gold", Amount: NewAmount(10)}})
	require.NoError(t, err)

	contractID, err := led.CreateContract("store_1", sellGoldTerms(), "sig")
	require.NoError(t, err)

	pendingTransaction(t, db, "tx_cancel", "store_1", TransactionContract)
	err = led.ProcessContract("tx_cancel", "store_1", contractID)
	require.NoError(t, err)

	balance, err := led.GetBalance("store_1")
	require.NoError(t, err)
	assert.Equal(t, "10", balance["gold"].String())

	balance, err = led.GetBalance(contractID)
	require.NoError(t, err)
	assert.Empty(t, balance)

	contract, err := led.GetContract(contractID)
	require.NoError(t, err)
	assert.True(t, contract.Executed)
}

func TestContractExecutesOnce(t *testing.T) {
	led, db := newTestLedger(t)

	_, err := led.AddAssets("store_1", []Asset{{Name: "gold", Amount: NewAmount(10)}})
	require.NoError(t, err)
	_, err = led.AddAssets("client_1", []Asset{{Name: "coin", Amount: NewAmount(200)}})
	require.NoError(t, err)

	contractID, err := led.CreateContract("store_1", sellGoldTerms(), "sig")
	require.NoError(t, err)

	pendingTransaction(t, db, "tx_buy_1", "client_1", TransactionContract)
	require.NoError(t, led.ProcessContract("tx_buy_1", "client_1", contractID))

	pendingTransaction(t, db, "tx_buy_2", "client_1", TransactionContract)
	err = led.ProcessContract("tx_buy_2", "client_1", contractID)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already executed")

	// the second attempt paid nothing
	balance, err := led.GetBalance("client_1")
	require.NoError(t, err)
	assert.Equal(t, "100", balance["coin"].String())
}

// A buyer who cannot pay leaves the contract open and every balance intact.
func TestContractBuyerInsufficientFunds(t *testing.T) {
	led, db := newTestLedger(t)

	_, err := led.AddAssets("store_1", []Asset{{Name: "gold", Amount: NewAmount(10)}})
	require.NoError(t, err)
	_, err = led.AddAssets("client_1", []Asset{{Name: "coin", Amount: NewAmount(30)}})
	require.NoError(t, err)

	contractID, err := led.CreateContract("store_1", sellGoldTerms(), "sig")
	require.NoError(t, err)

	pendingTransaction(t, db, "tx_buy", "client_1", TransactionContract)
	err = led.ProcessContract("tx_buy", "client_1", contractID)
	assert.Equal(t, ErrInsufficientFunds, errors.Cause(err))

	balance, err := led.GetBalance("client_1")
	require.NoError(t, err)
	assert.Equal(t, "30", balance["coin"].String())
	_, ok := balance["gold"]
	assert.False(t, ok)

	balance, err = led.GetBalance(contractID)
	require.NoError(t, err)
	assert.Equal(t, "10", balance["gold"].String())

	contract, err := led.GetContract(contractID)
	require.NoError(t, err)
	assert.False(t, contract.Executed)

	tx, err := led.GetTransaction("tx_buy")
	require.NoError(t, err)
	assert.True(t, tx.Executed)
	assert.True(t, tx.Failed)
}

func TestCreateContractValidation(t *testing.T) {
	led, _ := newTestLedger(t)

	_, err := led.CreateContract("", sellGoldTerms(), "sig")
	assert.EqualError(t, err, "missing owner")

	_, err = led.CreateContract("store_1", ContractTerms{Outputs: sellGoldTerms().Outputs}, "sig")
	assert.Error(t, err)

	_, err = led.CreateContract("store_1", ContractTerms{
		Inputs:  []Asset{{Name: "coin", Amount: NewAmount(-100)}},
		Outputs: []Asset{{Name: "gold", Amount: NewAmount(10)}},
	}, "sig")
	assert.Error(t, err)
}

// An offer the owner cannot cover is rejected and leaves no funded escrow.
func TestCreateContractUnfunded(t *testing.T) {
	led, _ := newTestLedger(t)

	_, err := led.CreateContract("store_1", sellGoldTerms(), "sig")
	assert.Equal(t, ErrInsufficientFunds, errors.Cause(err))
}

func TestAsyncContract(t *testing.T) {
	led := newListeningLedger(t)

	_, err := led.AddAssets("store_1", []Asset{{Name: "gold", Amount: NewAmount(10)}})
	require.NoError(t, err)
	_, err = led.AddAssets("client_1", []Asset{{Name: "coin", Amount: NewAmount(100)}})
	require.NoError(t, err)

	contractID, err := led.CreateContract("store_1", sellGoldTerms(), "sig")
	require.NoError(t, err)

	txID, err := led.AddContractRequest("client_1", contractID, "sig")
	require.NoError(t, err)

	tx, err := led.WaitForTransactions([]string{txID}, 10*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, tx.Executed)
	assert.False(t, tx.Failed)

	balance, err := led.GetBalance("client_1")
	require.NoError(t, err)
	assert.Equal(t, "10", balance["gold"].String())
}
