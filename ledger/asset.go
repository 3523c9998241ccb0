package ledger

import (
	"strings"

	"github.com/pkg/errors"
)

// Asset is a typed amount of a fungible unit. The unit identity is the
// policy id and the name joined by a dot; assets issued outside of any
// policy carry the bare name as their unit.
type Asset struct {
	PolicyID string `json:"policy_id,omitempty"`
	Name     string `json:"name"`
	Amount   Amount `json:"amount"`
}

func (t Asset) Unit() string {
	if t.PolicyID == "" {
		return t.Name
	}
	return t.PolicyID + "." + t.Name
}

// ParseUnit splits a unit string into policy id and name. A unit without a
// dot is a bare name under no policy.
func ParseUnit(unit string) (policyID string, name string) {
	i := strings.Index(unit, ".")
	if i < 0 {
		return "", unit
	}
	return unit[:i], unit[i+1:]
}

func AssetFromUnit(unit string, amount Amount) Asset {
	policyID, name := ParseUnit(unit)
	return Asset{PolicyID: policyID, Name: name, Amount: amount}
}

// AggregateAssets sums assets per unit preserving the order units first
// appear, so several lines of the same unit collapse into one.
func AggregateAssets(assets []Asset) []Asset {
	byUnit := make(map[string]int)
	aggregated := make([]Asset, 0, len(assets))

	for _, asset := range assets {
		unit := asset.Unit()
		if i, ok := byUnit[unit]; ok {
			aggregated[i].Amount = aggregated[i].Amount.Add(asset.Amount)
			continue
		}
		byUnit[unit] = len(aggregated)
		aggregated = append(aggregated, asset)
	}

	return aggregated
}

// SumAssets folds a list of assets into a balance per unit.
func SumAssets(assets []Asset) map[string]Amount {
	balance := make(map[string]Amount)
	for _, asset := range assets {
		balance[asset.Unit()] = balance[asset.Unit()].Add(asset.Amount)
	}
	return balance
}

func validateAssets(assets []Asset) error {
	if len(assets) == 0 {
		return errors.New("no assets to send")
	}
	for _, asset := range assets {
		if asset.Name == "" {
			return errors.New("asset has no name")
		}
	}
	return nil
}
