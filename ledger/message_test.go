package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	value, err := EncodeMessage(Message{
		ID:        "tx_1",
		Type:      TransactionExchange,
		Sender:    "wallet_1",
		Recipient: "wallet_2",
		Assets:    []Asset{{Name: "coin", Amount: NewAmount(100)}},
		Signature: "sig",
	})
	require.NoError(t, err)

	message, err := DecodeMessage(value)
	require.NoError(t, err)
	assert.Equal(t, "tx_1", message.ID)
	assert.Equal(t, TransactionExchange, message.Type)
	assert.Equal(t, "100", message.Assets[0].Amount.String())

	_, err = DecodeMessage([]byte(`{"sender":"wallet_1"}`))
	assert.Error(t, err)
}

func TestTransactionTypeJson(t *testing.T) {
	bytes, err := json.Marshal(TransactionContract)
	require.NoError(t, err)
	assert.Equal(t, `"contract"`, string(bytes))

	var txType TransactionType
	require.NoError(t, json.Unmarshal([]byte(`"exchange"`), &txType))
	assert.Equal(t, TransactionExchange, txType)

	assert.Error(t, json.Unmarshal([]byte(`"lease"`), &txType))
}
