package gdrive

import (
	"context"
	"errors"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
	"github.com/sisirapr/doc-qa-system/internal/infrastructure/resilience"
)

// classifyError tags Drive API failures with the domain kind the
// resilience layer and the HTTP adapter understand.
func classifyError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if resilience.AttemptTimedOut(ctx, err) {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return domain.WrapError(domain.ErrRateLimited, op, err)
		case gerr.Code == http.StatusUnauthorized, gerr.Code == http.StatusForbidden:
			if isQuotaError(gerr) {
				return domain.WrapError(domain.ErrRateLimited, op, err)
			}
			return domain.WrapError(domain.ErrAuthenticationFailed, op, err)
		case gerr.Code == http.StatusNotFound:
			return domain.WrapError(domain.ErrDocumentNotFound, op, err)
		case gerr.Code == http.StatusRequestTimeout, gerr.Code >= 500:
			return domain.WrapError(domain.ErrTemporary, op, err)
		default:
			return err
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return err
}

// Drive reports per-user quota exhaustion as 403 with a rate reason.
func isQuotaError(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "userRateLimitExceeded", "rateLimitExceeded":
			return true
		}
	}
	return false
}
