package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Utxo is an unspent transaction output: a bundle of asset amounts owned
// exclusively by Owner until spent by exactly one future operation.
// Holdings are always non negative, one entry per unit.
type Utxo struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Assets    []Asset   `json:"assets"`
	Spent     bool      `json:"spent"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewUtxo(owner string, assets []Asset) Utxo {
	now := time.Now().UTC()
	return Utxo{
		ID:        uuid.New().String(),
		Owner:     owner,
		Assets:    assets,
		Spent:     false,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type TransactionType int

const (
	TransactionExchange TransactionType = iota
	TransactionContract
)

func (t TransactionType) String() string {
	switch t {
	case TransactionExchange:
		return "exchange"
	case TransactionContract:
		return "contract"
	default:
		return "unknown"
	}
}

func (t TransactionType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *TransactionType) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"exchange"`:
		*t = TransactionExchange
	case `"contract"`:
		*t = TransactionContract
	default:
		return errors.Errorf("unknown transaction type %v", string(data))
	}
	return nil
}

// Transaction records the lifecycle of a transfer or contract settlement.
// It is created pending and flips exactly once to Executed, either clean or
// with Failed and Reason set. An executed transaction is never reprocessed.
type Transaction struct {
	ID        string          `json:"id"`
	Owner     string          `json:"owner"`
	Assets    []Asset         `json:"assets,omitempty"`
	Executed  bool            `json:"executed"`
	Failed    bool            `json:"failed"`
	Reason    string          `json:"reason,omitempty"`
	Type      TransactionType `json:"type"`
	Signature string          `json:"signature,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func NewTransaction(id string, owner string, txType TransactionType, signature string) Transaction {
	now := time.Now().UTC()
	return Transaction{
		ID:        id,
		Owner:     owner,
		Type:      txType,
		Signature: signature,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Contract is a two sided escrow: an offer of Outputs in exchange for
// Inputs, both aggregated per unit. The contract id doubles as the owner
// key of the escrow pseudo wallet holding the offered outputs.
type Contract struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Inputs    []Asset   `json:"inputs"`
	Outputs   []Asset   `json:"outputs"`
	Executed  bool      `json:"executed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Policy governs the supply of the units under it: an immutable policy
// forbids burns so the issued supply can only grow.
type Policy struct {
	PolicyID  string   `json:"policy_id"`
	Immutable bool     `json:"immutable"`
	Owner     []string `json:"owner"`
}
