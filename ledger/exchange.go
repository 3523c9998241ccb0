package ledger

import (
	"github.com/pkg/errors"
)

// exchange moves assetsToSend from sender to recipient inside the given
// atomic group, preserving total value unit by unit.
//
// Positive lines are owed to the recipient, negative lines are burns.
// Sender utxos are collected in creation order until every requested unit
// is covered, the collected utxos are spent conditionally, one utxo is
// created for the recipient with the positive lines and one for the sender
// with the per unit leftover. Burns need a mutable policy for their unit.
//
// Callers retry the whole operation on contention; selection starts from a
// fresh read of the sender's utxos on every attempt.
func exchange(db Database, sender string, recipient string, assetsToSend []Asset) error {
	toSend := AggregateAssets(assetsToSend)

	for _, asset := range toSend {
		if asset.Amount.Sign() >= 0 {
			continue
		}
		policy, err := db.FindPolicy(asset.Unit())
		if err != nil {
			return errors.Wrapf(err, "cannot find policy for %v", asset.Unit())
		}
		if policy.Immutable {
			return errors.Wrapf(ErrPolicyViolation, "the amount for %v must be higher than 0", asset.Unit())
		}
	}

	utxos, err := db.FindUtxosFor(sender)
	if err != nil {
		return errors.Wrapf(err, "cannot find utxos of %v", sender)
	}

	// collect utxos until every requested unit is covered
	collected := make(map[string]Asset)
	collectedUnits := make([]string, 0)
	used := make([]Utxo, 0)

	for _, utxo := range utxos {
		for _, asset := range utxo.Assets {
			unit := asset.Unit()
			held, ok := collected[unit]
			if !ok {
				collectedUnits = append(collectedUnits, unit)
				held = Asset{PolicyID: asset.PolicyID, Name: asset.Name}
			}
			held.Amount = held.Amount.Add(asset.Amount)
			collected[unit] = held
		}
		used = append(used, utxo)
		if covers(collected, toSend) {
			break
		}
	}

	if !covers(collected, toSend) {
		return errors.Wrapf(ErrInsufficientFunds, "cannot send assets of %v to %v", sender, recipient)
	}

	for _, utxo := range used {
		err = db.SpendUtxo(utxo.ID)
		if err != nil {
			return errors.Wrapf(err, "cannot spend utxo %v", utxo.ID)
		}
	}

	recipientAssets := make([]Asset, 0)
	for _, asset := range toSend {
		if asset.Amount.Sign() > 0 {
			recipientAssets = append(recipientAssets, asset)
		}
	}
	if len(recipientAssets) > 0 {
		err = db.CreateUtxo(NewUtxo(recipient, recipientAssets))
		if err != nil {
			return errors.Wrapf(err, "cannot create utxo for %v", recipient)
		}
	}

	// change: whatever was collected beyond the requested amount goes back
	// to the sender; a burn reduces the balance by its absolute value
	requested := SumAssets(toSend)
	change := make([]Asset, 0)

	for _, unit := range collectedUnits {
		held := collected[unit]
		req := requested[unit]

		var leftover Amount
		if req.Sign() >= 0 {
			leftover = held.Amount.Sub(req)
		} else {
			leftover = held.Amount.Add(req)
		}

		if leftover.Sign() > 0 {
			change = append(change, Asset{PolicyID: held.PolicyID, Name: held.Name, Amount: leftover})
		}
	}

	if len(change) > 0 {
		err = db.CreateUtxo(NewUtxo(sender, change))
		if err != nil {
			return errors.Wrapf(err, "cannot create change utxo for %v", sender)
		}
	}

	return nil
}

// covers reports whether the collected amounts satisfy every requested
// line: the amount itself for sends, its absolute value for burns.
func covers(collected map[string]Asset, toSend []Asset) bool {
	for _, asset := range toSend {
		need := asset.Amount
		if need.Sign() < 0 {
			need = need.Abs()
		}
		if collected[asset.Unit()].Amount.Cmp(need) < 0 {
			return false
		}
	}
	return true
}
