package ledger

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/olegabu/go-utxo-ledger/retry"
)

// ContractTerms are the fixed exchange terms of an escrow offer: the owner
// locks Outputs and asks Inputs for them.
type ContractTerms struct {
	Inputs  []Asset `json:"inputs"`
	Outputs []Asset `json:"outputs"`
}

// CreateContract records an escrow offer and synchronously moves the
// offered outputs from the owner into the custody of the contract's own
// pseudo wallet, keyed by the contract id. Terms are aggregated per unit,
// so several lines of one unit become a single escrowed holding.
func (t *Ledger) CreateContract(owner string, terms ContractTerms, signature string) (contractID string, err error) {
	if owner == "" {
		return "", errors.New("missing owner")
	}
	if len(terms.Inputs) == 0 || len(terms.Outputs) == 0 {
		return "", errors.New("contract needs both inputs and outputs")
	}
	for _, asset := range terms.Inputs {
		if asset.Amount.Sign() <= 0 {
			return "", errors.Errorf("the escrow amount for %v must be higher than 0", asset.Unit())
		}
	}
	for _, asset := range terms.Outputs {
		if asset.Amount.Sign() <= 0 {
			return "", errors.Errorf("the escrow amount for %v must be higher than 0", asset.Unit())
		}
	}

	inputs := AggregateAssets(terms.Inputs)
	outputs := AggregateAssets(terms.Outputs)

	contractID = uuid.New().String()

	contract := Contract{
		ID:      contractID,
		Owner:   owner,
		Inputs:  inputs,
		Outputs: outputs,
	}

	err = t.db.CreateContract(contract)
	if err != nil {
		return "", errors.Wrap(err, "cannot create contract")
	}

	// lock the offered outputs into escrow before the offer is visible
	txID := uuid.New().String()
	err = t.db.CreateTransaction(NewTransaction(txID, owner, TransactionExchange, signature))
	if err != nil {
		return "", errors.Wrap(err, "cannot create escrow funding transaction")
	}

	err = t.ProcessRequest(txID, owner, contractID, outputs, signature)
	if err != nil {
		return "", errors.Wrapf(err, "cannot fund escrow of contract %v", contractID)
	}

	t.logger.Info().Str("contract", contractID).Str("owner", owner).Msg("contract created")

	return contractID, nil
}

func (t *Ledger) GetContract(id string) (Contract, error) {
	return t.db.FindContract(id)
}

// ProcessContract settles a contract all-or-nothing for buyer. A third
// party pays the asking inputs through the escrow wallet to the owner and
// receives the escrowed outputs; the owner as buyer skips the payment and
// simply reclaims the outputs, cancelling the contract. Either way the
// contract executes exactly once.
func (t *Ledger) ProcessContract(txID string, buyer string, contractID string) error {
	err := t.processContract(txID, buyer, contractID)
	if err != nil {
		t.fileFailure(txID, nil, err)
		return err
	}

	t.logger.Info().Str("tx", txID).Str("contract", contractID).Msg("contract processed")

	return nil
}

func (t *Ledger) processContract(txID string, buyer string, contractID string) error {
	if txID == "" {
		return errors.New("missing transaction id")
	}
	if buyer == "" {
		return errors.New("missing buyer")
	}
	if contractID == "" {
		return errors.New("missing contract id")
	}

	return retry.Run(t.retry, func() error {
		return t.db.Atomic(func(tx Database) error {
			contract, err := tx.FindContract(contractID)
			if err != nil {
				return errors.Wrapf(err, "cannot find contract %v", contractID)
			}
			if contract.Executed {
				return errors.Errorf("contract %v is already executed", contractID)
			}

			if buyer != contract.Owner {
				// the buyer pays the asking price into escrow and the
				// escrow settles it onto the owner
				err = exchange(tx, buyer, contractID, contract.Inputs)
				if err != nil {
					return errors.Wrap(err, "cannot pay contract inputs")
				}
				err = exchange(tx, contractID, contract.Owner, contract.Inputs)
				if err != nil {
					return errors.Wrap(err, "cannot settle contract inputs on the owner")
				}
			}

			// release the escrowed outputs to the buyer; for the owner
			// this is a full refund, i.e. cancellation
			err = exchange(tx, contractID, buyer, contract.Outputs)
			if err != nil {
				return errors.Wrap(err, "cannot release contract outputs")
			}

			err = tx.UpdateContract(contractID, true)
			if err != nil {
				return err
			}

			return tx.UpdateTransaction(txID, true, contract.Outputs, "", false)
		})
	})
}
