package server

import (
	"errors"

	apperrors "clarify-api/internal/common/errors"
	accessgate "clarify-api/internal/services/access-gate"
	creditledger "clarify-api/internal/services/credit-ledger"
	repairpipeline "clarify-api/internal/services/repair-pipeline"
)

// gateError maps access-gate sentinels onto the HTTP taxonomy. Anything
// unrecognised is treated as a forbidden credential.
func gateError(err error) *apperrors.StandardError {
	switch {
	case errors.Is(err, accessgate.ErrUnauthenticated):
		return apperrors.NewUnauthenticatedError()
	case errors.Is(err, accessgate.ErrInsufficientBalance):
		return apperrors.NewInsufficientBalanceError(err.Error())
	default:
		return apperrors.NewForbiddenError(err.Error())
	}
}

// repairError maps pipeline failures. The demo path always reports the
// generic message.
func repairError(err error, demo bool) *apperrors.StandardError {
	if !demo && errors.Is(err, repairpipeline.ErrInvalidOutput) {
		return apperrors.NewRepairInvalidOutputError(err)
	}
	return apperrors.NewRepairFailedError(err)
}

func ledgerError(err error) *apperrors.StandardError {
	if errors.Is(err, creditledger.ErrNoCredits) {
		return apperrors.NewInsufficientBalanceError(err.Error())
	}
	return apperrors.NewInternalError(err)
}
