package venue

import "github.com/interbroker/bridge-api/internal/types"

// statusMapping translates the venue's order-status vocabulary into the
// canonical ledger statuses.
var statusMapping = map[string]string{
	"PendingSubmit": types.StatusPending,
	"PendingCancel": types.StatusPending,
	"PreSubmitted":  types.StatusSubmitted,
	"Submitted":     types.StatusSubmitted,
	"ApiPending":    types.StatusSubmitted,
	"ApiCancelled":  types.StatusCancelled,
	"Cancelled":     types.StatusCancelled,
	"Filled":        types.StatusFilled,
	"Inactive":      types.StatusRejected,
}

// MapStatus maps a venue status string to a canonical status. Unknown
// values map to PENDING so an unrecognized status never promotes an
// order to a terminal state.
func MapStatus(raw string) string {
	if mapped, ok := statusMapping[raw]; ok {
		return mapped
	}
	return types.StatusPending
}
