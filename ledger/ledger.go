package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/olegabu/go-utxo-ledger/pubsub"
	"github.com/olegabu/go-utxo-ledger/retry"
)

const (
	DefaultTopic        = "transactions"
	defaultPollInterval = 500 * time.Millisecond
	defaultWaitTimeout  = 60 * time.Second
)

// Ledger orchestrates the transaction lifecycle: requests are accepted,
// recorded pending and published to the bus; a consumer executes them
// against the exchange engine and files the outcome; callers poll until
// their transactions are filed.
type Ledger struct {
	db     Database
	bus    pubsub.Bus
	topic  string
	retry  retry.Policy
	logger zerolog.Logger
}

func NewLedger(db Database, bus pubsub.Bus, topic string, logger zerolog.Logger) *Ledger {
	if topic == "" {
		topic = DefaultTopic
	}

	t := &Ledger{
		db:     db,
		bus:    bus,
		topic:  topic,
		logger: logger,
	}

	t.retry = retry.Policy{
		Retries:   3,
		Delay:     50 * time.Millisecond,
		Factor:    1.5,
		Retryable: IsRetryable,
		OnRetry: func(attempt int, err error) {
			logger.Warn().Int("attempt", attempt).Err(err).Msg("retrying")
		},
	}

	return t
}

// AddAssets mints a fresh utxo for owner with the given assets, with no
// counterparty debit. Used for funding wallets.
func (t *Ledger) AddAssets(owner string, assets []Asset) (utxo Utxo, err error) {
	if owner == "" {
		return Utxo{}, errors.New("missing owner")
	}
	if err = validateAssets(assets); err != nil {
		return Utxo{}, err
	}
	for _, asset := range assets {
		if asset.Amount.Sign() <= 0 {
			return Utxo{}, errors.Errorf("cannot add %v of %v, amount must be higher than 0", asset.Amount, asset.Unit())
		}
	}

	utxo = NewUtxo(owner, AggregateAssets(assets))

	err = t.db.CreateUtxo(utxo)
	if err != nil {
		return Utxo{}, errors.Wrap(err, "cannot create utxo")
	}

	t.logger.Info().Str("utxo", utxo.ID).Str("owner", owner).Msg("funds added")

	return utxo, nil
}

// GetBalance sums assets across the owner's unspent utxos per unit. Units
// with a zero sum are omitted.
func (t *Ledger) GetBalance(owner string) (map[string]Amount, error) {
	utxos, err := t.db.FindUtxosFor(owner)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot find utxos of %v", owner)
	}

	balance := make(map[string]Amount)
	for _, utxo := range utxos {
		for _, asset := range utxo.Assets {
			balance[asset.Unit()] = balance[asset.Unit()].Add(asset.Amount)
		}
	}

	for unit, amount := range balance {
		if amount.IsZero() {
			delete(balance, unit)
		}
	}

	return balance, nil
}

func (t *Ledger) GetUtxos(owner string) ([]Utxo, error) {
	return t.db.FindUtxosFor(owner)
}

func (t *Ledger) GetTransaction(id string) (Transaction, error) {
	return t.db.FindTransaction(id)
}

// AddRequest records a pending exchange transaction and publishes it for
// asynchronous execution. It returns the transaction id immediately; the
// outcome is observed via WaitForTransactions.
func (t *Ledger) AddRequest(sender string, recipient string, assets []Asset, signature string) (txID string, err error) {
	txID = uuid.New().String()

	err = t.db.CreateTransaction(NewTransaction(txID, sender, TransactionExchange, signature))
	if err != nil {
		return "", errors.Wrap(err, "cannot create transaction")
	}

	value, err := EncodeMessage(Message{
		ID:        txID,
		Type:      TransactionExchange,
		Sender:    sender,
		Recipient: recipient,
		Assets:    assets,
		Signature: signature,
	})
	if err != nil {
		return "", err
	}

	err = t.bus.SendMessage(t.topic, []pubsub.KeyedMessage{{Key: []byte(sender), Value: value}})
	if err != nil {
		return "", errors.Wrap(err, "cannot send message")
	}

	t.logger.Info().Str("tx", txID).Msg("transaction sent to the queue")

	return txID, nil
}

// AddContractRequest records a pending contract transaction for buyer
// against contractID and publishes it for asynchronous execution. A buyer
// equal to the contract owner cancels the contract.
func (t *Ledger) AddContractRequest(buyer string, contractID string, signature string) (txID string, err error) {
	txID = uuid.New().String()

	err = t.db.CreateTransaction(NewTransaction(txID, buyer, TransactionContract, signature))
	if err != nil {
		return "", errors.Wrap(err, "cannot create transaction")
	}

	value, err := EncodeMessage(Message{
		ID:         txID,
		Type:       TransactionContract,
		Sender:     buyer,
		ContractID: contractID,
		Signature:  signature,
	})
	if err != nil {
		return "", err
	}

	err = t.bus.SendMessage(t.topic, []pubsub.KeyedMessage{{Key: []byte(buyer), Value: value}})
	if err != nil {
		return "", errors.Wrap(err, "cannot send message")
	}

	t.logger.Info().Str("tx", txID).Str("contract", contractID).Msg("contract transaction sent to the queue")

	return txID, nil
}

// ProcessRequest executes a pending exchange transaction: inside one
// atomic group the exchange engine moves the assets and the transaction is
// marked executed. On failure the exchange rolls back and the failure is
// filed on the transaction in a separate update so the record survives.
func (t *Ledger) ProcessRequest(txID string, sender string, recipient string, assets []Asset, signature string) error {
	err := t.processRequest(txID, sender, recipient, assets, signature)
	if err != nil {
		t.fileFailure(txID, assets, err)
		return err
	}

	t.logger.Info().Str("tx", txID).Msg("transaction processed")

	return nil
}

func (t *Ledger) processRequest(txID string, sender string, recipient string, assets []Asset, signature string) error {
	if txID == "" {
		return errors.New("missing transaction id")
	}
	if sender == "" {
		return errors.New("missing sender")
	}
	if recipient == "" {
		return errors.New("missing recipient")
	}
	if signature == "" {
		return errors.New("missing signature")
	}
	if err := validateAssets(assets); err != nil {
		return err
	}

	return retry.Run(t.retry, func() error {
		return t.db.Atomic(func(tx Database) error {
			err := exchange(tx, sender, recipient, assets)
			if err != nil {
				return err
			}
			return tx.UpdateTransaction(txID, true, assets, "", false)
		})
	})
}

// fileFailure marks a transaction executed and failed outside of any
// atomic group, so the failure record persists even though the exchange
// was rolled back.
func (t *Ledger) fileFailure(txID string, assets []Asset, cause error) {
	t.logger.Error().Str("tx", txID).Err(cause).Msg("transaction failed")

	err := t.db.UpdateTransaction(txID, true, assets, cause.Error(), true)
	if err != nil {
		t.logger.Error().Str("tx", txID).Err(err).Msg("cannot file transaction failure")
	}
}

// Process is the consumer side entry point for a message delivered from
// the bus. A message whose transaction no longer exists is a duplicate or
// stale delivery and is discarded; otherwise the message is dispatched by
// the stored transaction type and any failure is filed on the transaction.
func (t *Ledger) Process(value []byte) error {
	message, err := DecodeMessage(value)
	if err != nil {
		t.logger.Error().Err(err).Msg("discarding undecodable message")
		return err
	}

	tx, err := t.db.FindTransaction(message.ID)
	if errors.Cause(err) == ErrNotFound {
		t.logger.Info().Str("tx", message.ID).Msg("ignoring transaction as it does not exist in the database")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "cannot find transaction %v", message.ID)
	}

	if tx.Executed {
		t.logger.Info().Str("tx", message.ID).Msg("ignoring transaction as it is already executed")
		return nil
	}

	switch tx.Type {
	case TransactionExchange:
		return t.ProcessRequest(message.ID, message.Sender, message.Recipient, message.Assets, message.Signature)
	case TransactionContract:
		return t.ProcessContract(message.ID, message.Sender, message.ContractID)
	default:
		err = errors.Errorf("unknown transaction type %v", tx.Type)
		t.fileFailure(message.ID, message.Assets, err)
		return err
	}
}

// WaitForTransactions polls until every listed transaction is executed,
// returning the last transaction seen so the caller can inspect Failed and
// Reason. After timeout it fails with ErrTimeout; the underlying work is
// not cancelled, the caller merely stops waiting.
func (t *Ledger) WaitForTransactions(txIDs []string, interval time.Duration, timeout time.Duration) (last Transaction, err error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}

	deadline := time.Now().Add(timeout)

	for {
		completed := true
		for _, txID := range txIDs {
			tx, err := t.db.FindTransaction(txID)
			if err != nil {
				return Transaction{}, errors.Wrapf(err, "cannot find transaction %v", txID)
			}
			last = tx
			if !tx.Executed {
				completed = false
				break
			}
		}

		if completed {
			return last, nil
		}

		if time.Now().After(deadline) {
			return Transaction{}, ErrTimeout
		}

		time.Sleep(interval)
	}
}
