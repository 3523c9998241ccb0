package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegabu/go-utxo-ledger/pubsub"
)

// newListeningLedger wires a ledger to a memory bus and starts a consumer
// that executes incoming transactions, the way the node runs it.
func newListeningLedger(t *testing.T) *Ledger {
	db, err := NewLeveldbDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	bus := pubsub.NewMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })

	led := NewLedger(db, bus, "", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = bus.Listen(ctx, DefaultTopic, "test", func(value []byte) {
			_ = led.Process(value)
		})
	}()

	return led
}

func TestAddAssets(t *testing.T) {
	led, _ := newTestLedger(t)

	utxo, err := led.AddAssets("wallet_1", []Asset{
		{Name: "coin", Amount: NewAmount(10)},
		{Name: "coin", Amount: NewAmount(5)},
	})
	assert.NoError(t, err)
	// lines of one unit are aggregated on the way in
	assert.Len(t, utxo.Assets, 1)
	assert.Equal(t, "15", utxo.Assets[0].Amount.String())

	_, err = led.AddAssets("", []Asset{{Name: "coin", Amount: NewAmount(1)}})
	assert.EqualError(t, err, "missing owner")

	_, err = led.AddAssets("wallet_1", nil)
	assert.Error(t, err)

	_, err = led.AddAssets("wallet_1", []Asset{{Name: "coin", Amount: NewAmount(-1)}})
	assert.Error(t, err)
}

// The full asynchronous round trip: submit, consume, execute, poll.
func TestAsyncExchange(t *testing.T) {
	led := newListeningLedger(t)

	_, err := led.AddAssets("wallet_1", []Asset{{Name: "coin", Amount: NewAmount(100)}})
	require.NoError(t, err)

	txID, err := led.AddRequest("wallet_1", "wallet_2", []Asset{{Name: "coin", Amount: NewAmount(40)}}, "sig")
	require.NoError(t, err)

	tx, err := led.WaitForTransactions([]string{txID}, 10*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, tx.Executed)
	assert.False(t, tx.Failed)

	balance, err := led.GetBalance("wallet_2")
	require.NoError(t, err)
	assert.Equal(t, "40", balance["coin"].String())

	balance, err = led.GetBalance("wallet_1")
	require.NoError(t, err)
	assert.Equal(t, "60", balance["coin"].String())
}

func TestAsyncExchangeFailureIsFiled(t *testing.T) {
	led := newListeningLedger(t)

	// no funding at all
	txID, err := led.AddRequest("wallet_1", "wallet_2", []Asset{{Name: "coin", Amount: NewAmount(40)}}, "sig")
	require.NoError(t, err)

	tx, err := led.WaitForTransactions([]string{txID}, 10*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, tx.Executed)
	assert.True(t, tx.Failed)
	assert.Contains(t, tx.Reason, "insufficient funds")
}

func TestWaitForTransactionsTimeout(t *testing.T) {
	led, db := newTestLedger(t)

	// pending forever: nothing consumes it
	pendingTransaction(t, db, "tx_1", "wallet_1", TransactionExchange)

	_, err := led.WaitForTransactions([]string{"tx_1"}, 10*time.Millisecond, 50*time.Millisecond)
	assert.Equal(t, ErrTimeout, errors.Cause(err))
}

func TestWaitForTransactionsUnknownId(t *testing.T) {
	led, _ := newTestLedger(t)

	_, err := led.WaitForTransactions([]string{"no such tx"}, 10*time.Millisecond, 50*time.Millisecond)
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestProcessDiscardsUnknownTransaction(t *testing.T) {
	led, _ := newTestLedger(t)

	value, err := EncodeMessage(Message{
		ID:        "never registered",
		Type:      TransactionExchange,
		Sender:    "wallet_1",
		Recipient: "wallet_2",
		Assets:    []Asset{{Name: "coin", Amount: NewAmount(1)}},
		Signature: "sig",
	})
	require.NoError(t, err)

	// a message without a transaction row is dropped, not an error
	assert.NoError(t, led.Process(value))
}

func TestProcessDiscardsExecutedTransaction(t *testing.T) {
	led, db := newTestLedger(t)

	pendingTransaction(t, db, "tx_1", "wallet_1", TransactionExchange)
	require.NoError(t, db.UpdateTransaction("tx_1", true, nil, "", false))

	value, err := EncodeMessage(Message{
		ID:        "tx_1",
		Type:      TransactionExchange,
		Sender:    "wallet_1",
		Recipient: "wallet_2",
		Assets:    []Asset{{Name: "coin", Amount: NewAmount(1)}},
		Signature: "sig",
	})
	require.NoError(t, err)

	// redelivery of an executed transaction must not spend again
	assert.NoError(t, led.Process(value))

	balance, err := led.GetBalance("wallet_2")
	require.NoError(t, err)
	assert.Empty(t, balance)
}

func TestProcessRejectsGarbage(t *testing.T) {
	led, _ := newTestLedger(t)

	assert.Error(t, led.Process([]byte("not json")))
	assert.Error(t, led.Process([]byte(`{"sender":"wallet_1"}`)))
}
