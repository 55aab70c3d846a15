package store

import (
	"github.com/sells-group/disclosure-cli/internal/model"
)

// FeftaChange describes one company whose classification moved between two
// consecutive published lists.
type FeftaChange struct {
	SecuritiesCode string
	CompanyNameJA  string
	Type           model.FeftaChangeType

	OldCategory int
	NewCategory int

	OldCoreOperator *int
	NewCoreOperator *int
}

// DiffFeftaSnapshots compares two record sets keyed by securities code and
// returns the classification changes, ordered by the new list's order.
// Companies present in only one list are not reported; additions and
// removals are visible from the snapshots themselves.
func DiffFeftaSnapshots(older, newer []model.FeftaRecord) []FeftaChange {
	prev := make(map[string]model.FeftaRecord, len(older))
	for _, r := range older {
		prev[r.SecuritiesCode] = r
	}

	var changes []FeftaChange
	for _, cur := range newer {
		before, ok := prev[cur.SecuritiesCode]
		if !ok {
			continue
		}

		categoryMoved := before.Category != cur.Category
		coreMoved := !coreOperatorEqual(before.CoreOperator, cur.CoreOperator)
		if !categoryMoved && !coreMoved {
			continue
		}

		change := FeftaChange{
			SecuritiesCode:  cur.SecuritiesCode,
			CompanyNameJA:   cur.CompanyNameJA,
			OldCategory:     before.Category,
			NewCategory:     cur.Category,
			OldCoreOperator: before.CoreOperator,
			NewCoreOperator: cur.CoreOperator,
		}

		// TODO: a category move plus a core-operator move tags as
		// CATEGORY_CHANGED because the branches are checked in sequence;
		// BOTH_CHANGED is never assigned. Downstream consumers filter on
		// CATEGORY_CHANGED, so fixing the ordering needs a coordinated
		// change with the report generator.
		if categoryMoved {
			change.Type = model.FeftaCategoryChanged
		} else if coreMoved {
			change.Type = model.FeftaCoreOperatorChanged
		} else {
			change.Type = model.FeftaBothChanged
		}

		changes = append(changes, change)
	}
	return changes
}

func coreOperatorEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
