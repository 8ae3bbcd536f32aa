package api

import (
	"errors"
	"net/http"

	"github.com/ignite/churn-radar/internal/datanorm"
	"github.com/ignite/churn-radar/internal/financial"
	"github.com/ignite/churn-radar/internal/pkg/distlock"
	"github.com/ignite/churn-radar/internal/pkg/httputil"
	"github.com/ignite/churn-radar/internal/service/runs"
	"github.com/ignite/churn-radar/internal/storage"
)

// =============================================================================
// ERROR MAPPING
// Input problems surface with their message and a machine-readable code.
// Everything else is logged server-side and answered with a generic 500.
// =============================================================================

func respondError(w http.ResponseWriter, err error) {
	var (
		dfe *datanorm.DataFormatError
		iae *financial.InvalidAssumptionError
	)
	switch {
	case errors.As(err, &dfe):
		details := map[string]string{}
		if dfe.Column != "" {
			details["column"] = string(dfe.Column)
		}
		httputil.ErrorCode(w, http.StatusUnprocessableEntity, "data_format", dfe.Error(), details)
	case errors.As(err, &iae):
		httputil.ErrorCode(w, http.StatusBadRequest, "invalid_assumption", iae.Error(), map[string]any{
			"cohort": iae.Cohort,
			"field":  iae.Field,
			"value":  iae.Value,
		})
	case errors.Is(err, runs.ErrNotFound), errors.Is(err, storage.ErrCacheMiss):
		httputil.ErrorCode(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, distlock.ErrLocked):
		httputil.ErrorCode(w, http.StatusConflict, "run_in_progress", "an identical run is already in progress", nil)
	default:
		httputil.InternalError(w, err)
	}
}
