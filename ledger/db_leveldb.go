package ledger

import (
	"encoding/json"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// kvStore is the subset of goleveldb shared by *leveldb.DB and
// *leveldb.Transaction so the same row operations serve both plain writes
// and atomic groups.
type kvStore interface {
	Get(key []byte, ro *opt.ReadOptions) (value []byte, err error)
	Has(key []byte, ro *opt.ReadOptions) (ret bool, err error)
	Put(key, value []byte, wo *opt.WriteOptions) error
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type leveldbDatabase struct {
	ldb *leveldb.DB
	mu  sync.RWMutex
}

func NewLeveldbDatabase(dbDir string) (d Database, err error) {
	dbFilename := filepath.Join(dbDir, "ledger")

	ldb, err := leveldb.OpenFile(dbFilename, nil)
	if err != nil {
		err = errors.Wrapf(err, "cannot open leveldb at %v", dbFilename)
		return
	}

	d = &leveldbDatabase{ldb: ldb}
	return
}

func (t *leveldbDatabase) Close() {
	err := t.ldb.Close()
	if err != nil {
		log.Fatal("cannot close leveldb:", err)
	}
}

// Atomic serializes groups behind the write lock and backs them with a
// leveldb transaction: a failed group is discarded wholesale, so no write
// inside it ever becomes visible.
func (t *leveldbDatabase) Atomic(fn func(tx Database) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, err := t.ldb.OpenTransaction()
	if err != nil {
		return errors.Wrap(err, "cannot open leveldb transaction")
	}

	err = fn(&leveldbGroup{tr: tr})
	if err != nil {
		tr.Discard()
		return err
	}

	err = tr.Commit()
	if err != nil {
		return errors.Wrap(err, "cannot commit leveldb transaction")
	}

	return nil
}

func (t *leveldbDatabase) CreateUtxo(utxo Utxo) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return createUtxo(t.ldb, utxo)
}

func (t *leveldbDatabase) FindUtxo(id string) (Utxo, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return findUtxo(t.ldb, id)
}

func (t *leveldbDatabase) FindUtxosFor(owner string) ([]Utxo, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return findUtxosFor(t.ldb, owner)
}

func (t *leveldbDatabase) SpendUtxo(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return spendUtxo(t.ldb, id)
}

func (t *leveldbDatabase) CreateTransaction(tx Transaction) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return createTransaction(t.ldb, tx)
}

func (t *leveldbDatabase) FindTransaction(id string) (Transaction, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return findTransaction(t.ldb, id)
}

func (t *leveldbDatabase) UpdateTransaction(id string, executed bool, assets []Asset, reason string, failed bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return updateTransaction(t.ldb, id, executed, assets, reason, failed)
}

func (t *leveldbDatabase) CreateContract(contract Contract) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return createContract(t.ldb, contract)
}

func (t *leveldbDatabase) FindContract(id string) (Contract, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return findContract(t.ldb, id)
}

func (t *leveldbDatabase) UpdateContract(id string, executed bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return updateContract(t.ldb, id, executed)
}

func (t *leveldbDatabase) CreatePolicy(policy Policy) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return createPolicy(t.ldb, policy)
}

func (t *leveldbDatabase) FindPolicy(unit string) (Policy, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return findPolicy(t.ldb, unit)
}

// leveldbGroup is a Database view over an open leveldb transaction. The
// outer Atomic holds the write lock for the life of the group, so reads
// and conditional updates inside it are isolated.
type leveldbGroup struct {
	tr *leveldb.Transaction
}

// Atomic on a group joins the enclosing group rather than nesting.
func (t *leveldbGroup) Atomic(fn func(tx Database) error) error {
	return fn(t)
}

func (t *leveldbGroup) Close() {}

func (t *leveldbGroup) CreateUtxo(utxo Utxo) error   { return createUtxo(t.tr, utxo) }
func (t *leveldbGroup) FindUtxo(id string) (Utxo, error) { return findUtxo(t.tr, id) }
func (t *leveldbGroup) FindUtxosFor(owner string) ([]Utxo, error) {
	return findUtxosFor(t.tr, owner)
}
func (t *leveldbGroup) SpendUtxo(id string) error { return spendUtxo(t.tr, id) }
func (t *leveldbGroup) CreateTransaction(tx Transaction) error {
	return createTransaction(t.tr, tx)
}
func (t *leveldbGroup) FindTransaction(id string) (Transaction, error) {
	return findTransaction(t.tr, id)
}
func (t *leveldbGroup) UpdateTransaction(id string, executed bool, assets []Asset, reason string, failed bool) error {
	return updateTransaction(t.tr, id, executed, assets, reason, failed)
}
func (t *leveldbGroup) CreateContract(contract Contract) error {
	return createContract(t.tr, contract)
}
func (t *leveldbGroup) FindContract(id string) (Contract, error) {
	return findContract(t.tr, id)
}
func (t *leveldbGroup) UpdateContract(id string, executed bool) error {
	return updateContract(t.tr, id, executed)
}
func (t *leveldbGroup) CreatePolicy(policy Policy) error { return createPolicy(t.tr, policy) }
func (t *leveldbGroup) FindPolicy(unit string) (Policy, error) {
	return findPolicy(t.tr, unit)
}

func utxoKey(id string) []byte {
	return []byte("utxo." + id)
}

func utxoRange() *util.Range {
	return util.BytesPrefix([]byte("utxo."))
}

func transactionKey(id string) []byte {
	return []byte("transaction." + id)
}

func contractKey(id string) []byte {
	return []byte("contract." + id)
}

func policyKey(unit string) []byte {
	return []byte("policy." + unit)
}

func createUtxo(kv kvStore, utxo Utxo) error {
	exists, err := kv.Has(utxoKey(utxo.ID), nil)
	if err != nil {
		return errors.Wrap(err, "cannot check if Has utxo")
	}
	if exists {
		return errors.Errorf("utxo %v already exists", utxo.ID)
	}

	utxoBytes, err := json.Marshal(utxo)
	if err != nil {
		return errors.Wrap(err, "cannot marshal utxo into json")
	}

	err = kv.Put(utxoKey(utxo.ID), utxoBytes, nil)
	if err != nil {
		return errors.Wrap(err, "cannot Put utxo")
	}

	return nil
}

func findUtxo(kv kvStore, id string) (utxo Utxo, err error) {
	utxoBytes, err := kv.Get(utxoKey(id), nil)
	if err == leveldb.ErrNotFound {
		return Utxo{}, errors.Wrapf(ErrNotFound, "utxo %v", id)
	}
	if err != nil {
		return Utxo{}, errors.Wrap(err, "cannot Get utxo")
	}

	err = json.Unmarshal(utxoBytes, &utxo)
	if err != nil {
		return Utxo{}, errors.Wrap(err, "cannot unmarshal utxoBytes")
	}

	return utxo, nil
}

// findUtxosFor returns the unspent utxos of an owner, oldest first so
// selection consumes them in creation order.
func findUtxosFor(kv kvStore, owner string) (utxos []Utxo, err error) {
	utxos = make([]Utxo, 0)

	iter := kv.NewIterator(utxoRange(), nil)
	for iter.Next() {
		utxo := Utxo{}
		err = json.Unmarshal(iter.Value(), &utxo)
		if err != nil {
			iter.Release()
			return nil, errors.Wrap(err, "cannot unmarshal utxo in iterator")
		}
		if utxo.Owner == owner && !utxo.Spent {
			utxos = append(utxos, utxo)
		}
	}

	iter.Release()
	err = iter.Error()
	if err != nil {
		return nil, errors.Wrap(err, "cannot iterate")
	}

	sort.Slice(utxos, func(i, j int) bool {
		return utxos[i].CreatedAt.Before(utxos[j].CreatedAt)
	})

	return utxos, nil
}

// spendUtxo flips a utxo unspent to spent. The flip is conditional: a utxo
// already spent fails with ErrAlreadySpent so exactly one of two racing
// spenders wins.
func spendUtxo(kv kvStore, id string) error {
	utxo, err := findUtxo(kv, id)
	if err != nil {
		return err
	}

	if utxo.Spent {
		return errors.Wrapf(ErrAlreadySpent, "utxo %v", id)
	}

	utxo.Spent = true
	utxo.UpdatedAt = time.Now().UTC()

	utxoBytes, err := json.Marshal(utxo)
	if err != nil {
		return errors.Wrap(err, "cannot marshal utxo into json")
	}

	err = kv.Put(utxoKey(id), utxoBytes, nil)
	if err != nil {
		return errors.Wrap(err, "cannot Put utxo")
	}

	return nil
}

func createTransaction(kv kvStore, tx Transaction) error {
	exists, err := kv.Has(transactionKey(tx.ID), nil)
	if err != nil {
		return errors.Wrap(err, "cannot check if Has transaction")
	}
	if exists {
		return errors.Errorf("transaction %v already exists", tx.ID)
	}

	txBytes, err := json.Marshal(tx)
	if err != nil {
		return errors.Wrap(err, "cannot marshal transaction into json")
	}

	err = kv.Put(transactionKey(tx.ID), txBytes, nil)
	if err != nil {
		return errors.Wrap(err, "cannot Put transaction")
	}

	return nil
}

func findTransaction(kv kvStore, id string) (tx Transaction, err error) {
	txBytes, err := kv.Get(transactionKey(id), nil)
	if err == leveldb.ErrNotFound {
		return Transaction{}, errors.Wrapf(ErrNotFound, "transaction %v", id)
	}
	if err != nil {
		return Transaction{}, errors.Wrap(err, "cannot Get transaction")
	}

	err = json.Unmarshal(txBytes, &tx)
	if err != nil {
		return Transaction{}, errors.Wrap(err, "cannot unmarshal transactionBytes")
	}

	return tx, nil
}

func updateTransaction(kv kvStore, id string, executed bool, assets []Asset, reason string, failed bool) error {
	tx, err := findTransaction(kv, id)
	if errors.Cause(err) == ErrNotFound {
		return errors.Wrapf(ErrInvariant, "transaction %v not updated", id)
	}
	if err != nil {
		return err
	}

	tx.Executed = executed
	tx.Assets = assets
	tx.Reason = reason
	tx.Failed = failed
	tx.UpdatedAt = time.Now().UTC()

	txBytes, err := json.Marshal(tx)
	if err != nil {
		return errors.Wrap(err, "cannot marshal transaction into json")
	}

	err = kv.Put(transactionKey(id), txBytes, nil)
	if err != nil {
		return errors.Wrap(err, "cannot Put transaction")
	}

	return nil
}

func createContract(kv kvStore, contract Contract) error {
	exists, err := kv.Has(contractKey(contract.ID), nil)
	if err != nil {
		return errors.Wrap(err, "cannot check if Has contract")
	}
	if exists {
		return errors.Errorf("contract %v already exists", contract.ID)
	}

	contractBytes, err := json.Marshal(contract)
	if err != nil {
		return errors.Wrap(err, "cannot marshal contract into json")
	}

	err = kv.Put(contractKey(contract.ID), contractBytes, nil)
	if err != nil {
		return errors.Wrap(err, "cannot Put contract")
	}

	return nil
}

func findContract(kv kvStore, id string) (contract Contract, err error) {
	contractBytes, err := kv.Get(contractKey(id), nil)
	if err == leveldb.ErrNotFound {
		return Contract{}, errors.Wrapf(ErrNotFound, "contract %v", id)
	}
	if err != nil {
		return Contract{}, errors.Wrap(err, "cannot Get contract")
	}

	err = json.Unmarshal(contractBytes, &contract)
	if err != nil {
		return Contract{}, errors.Wrap(err, "cannot unmarshal contractBytes")
	}

	return contract, nil
}

func updateContract(kv kvStore, id string, executed bool) error {
	contract, err := findContract(kv, id)
	if errors.Cause(err) == ErrNotFound {
		return errors.Wrapf(ErrInvariant, "contract %v not updated", id)
	}
	if err != nil {
		return err
	}

	contract.Executed = executed
	contract.UpdatedAt = time.Now().UTC()

	contractBytes, err := json.Marshal(contract)
	if err != nil {
		return errors.Wrap(err, "cannot marshal contract into json")
	}

	err = kv.Put(contractKey(id), contractBytes, nil)
	if err != nil {
		return errors.Wrap(err, "cannot Put contract")
	}

	return nil
}

func createPolicy(kv kvStore, policy Policy) error {
	exists, err := kv.Has(policyKey(policy.PolicyID), nil)
	if err != nil {
		return errors.Wrap(err, "cannot check if Has policy")
	}
	if exists {
		return errors.Errorf("policy %v already exists", policy.PolicyID)
	}

	policyBytes, err := json.Marshal(policy)
	if err != nil {
		return errors.Wrap(err, "cannot marshal policy into json")
	}

	err = kv.Put(policyKey(policy.PolicyID), policyBytes, nil)
	if err != nil {
		return errors.Wrap(err, "cannot Put policy")
	}

	return nil
}

func findPolicy(kv kvStore, unit string) (policy Policy, err error) {
	policyBytes, err := kv.Get(policyKey(unit), nil)
	if err == leveldb.ErrNotFound {
		return Policy{}, errors.Wrapf(ErrNotFound, "policy %v", unit)
	}
	if err != nil {
		return Policy{}, errors.Wrap(err, "cannot Get policy")
	}

	err = json.Unmarshal(policyBytes, &policy)
	if err != nil {
		return Policy{}, errors.Wrap(err, "cannot unmarshal policyBytes")
	}

	return policy, nil
}
