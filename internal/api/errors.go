package api

import (
	"errors"
	"net/http"

	"github.com/clawchain/clawmarket/internal/domain"
	"github.com/clawchain/clawmarket/internal/node"
)

// statusFor maps a dispatch error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, node.ErrHalted):
		return http.StatusServiceUnavailable

	case errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrBidNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrBadOrigin),
		errors.Is(err, domain.ErrNotPoster),
		errors.Is(err, domain.ErrNotAssignee),
		errors.Is(err, domain.ErrNotParty),
		errors.Is(err, domain.ErrCannotBidOnOwnTask),
		errors.Is(err, domain.ErrSelfReview):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrInvalidTaskStatus),
		errors.Is(err, domain.ErrTooManyBids),
		errors.Is(err, domain.ErrTooManyActiveTasks):
		return http.StatusConflict

	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusPaymentRequired

	case errors.Is(err, domain.ErrUnknownCall):
		return http.StatusBadRequest
	}
	if domain.ErrorCode(err) != "" {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeDispatchError writes err with its status and wire code.
func writeDispatchError(w http.ResponseWriter, err error) {
	code := domain.ErrorCode(err)
	if errors.Is(err, node.ErrHalted) {
		code = "halted"
	}
	if code == "" {
		code = "internal"
	}
	writeError(w, statusFor(err), code, err.Error())
}
