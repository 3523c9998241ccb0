package ledger

// Database is the storage collaborator the ledger requires: a transactional
// key space holding utxos, transactions, contracts and policies.
//
// Create operations insert exactly one new row and fail on a duplicate id.
// Update operations must affect exactly one row; an absent row surfaces as
// ErrInvariant. SpendUtxo is conditional: it succeeds only while the utxo
// is unspent and fails with ErrAlreadySpent when racing another spender.
//
// Atomic runs fn as one all-or-nothing group: either every write inside is
// committed or none is. Groups are serialized against each other and
// against single writes, which stands in for row level locking.
type Database interface {
	CreateUtxo(utxo Utxo) error
	FindUtxo(id string) (Utxo, error)
	FindUtxosFor(owner string) ([]Utxo, error)
	SpendUtxo(id string) error

	CreateTransaction(tx Transaction) error
	FindTransaction(id string) (Transaction, error)
	UpdateTransaction(id string, executed bool, assets []Asset, reason string, failed bool) error

	CreateContract(contract Contract) error
	FindContract(id string) (Contract, error)
	UpdateContract(id string, executed bool) error

	CreatePolicy(policy Policy) error
	FindPolicy(unit string) (Policy, error)

	Atomic(fn func(tx Database) error) error
	Close()
}
