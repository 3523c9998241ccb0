package ledger

import (
	"github.com/pkg/errors"
)

// CreatePolicy registers the policy governing a unit's supply. Policies
// are created once and looked up read only afterwards.
func (t *Ledger) CreatePolicy(policyID string, owner []string, immutable bool) (string, error) {
	if policyID == "" {
		return "", errors.New("missing policy id")
	}

	if len(owner) == 0 {
		t.logger.Warn().Str("policy", policyID).Msg("the policy has no designated owners, so anyone can mint new assets")
	}

	err := t.db.CreatePolicy(Policy{PolicyID: policyID, Immutable: immutable, Owner: owner})
	if err != nil {
		return "", errors.Wrap(err, "cannot create policy")
	}

	t.logger.Info().Str("policy", policyID).Bool("immutable", immutable).Msg("policy created")

	return policyID, nil
}

func (t *Ledger) GetPolicy(unit string) (Policy, error) {
	return t.db.FindPolicy(unit)
}
