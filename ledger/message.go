package ledger

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Message is the wire shape published when a request is accepted and
// consumed when it is executed. Amounts travel as decimal strings inside
// the assets. The variant is closed: exchange messages carry sender,
// recipient and assets, contract messages carry the contract id.
type Message struct {
	ID         string          `json:"id"`
	Type       TransactionType `json:"type"`
	Sender     string          `json:"sender,omitempty"`
	Recipient  string          `json:"recipient,omitempty"`
	Assets     []Asset         `json:"assetsToSend,omitempty"`
	ContractID string          `json:"contractId,omitempty"`
	Signature  string          `json:"signature,omitempty"`
}

func EncodeMessage(message Message) ([]byte, error) {
	value, err := json.Marshal(message)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal message into json")
	}
	return value, nil
}

func DecodeMessage(value []byte) (message Message, err error) {
	err = json.Unmarshal(value, &message)
	if err != nil {
		return Message{}, errors.Wrap(err, "cannot unmarshal message")
	}
	if message.ID == "" {
		return Message{}, errors.New("message has no transaction id")
	}
	return message, nil
}
