package executor

import (
	"errors"
	"strings"

	apperrors "github.com/ricesearch/quickquery/internal/pkg/errors"
)

type errorPattern struct {
	kind     apperrors.Kind
	patterns []string
}

// nonRetryable patterns are checked first and always win.
var nonRetryable = []errorPattern{
	{apperrors.KindAuthorization, []string{"permission", "unauthorized", "unauthenticated", "forbidden", "access denied"}},
	{apperrors.KindNotFound, []string{"not found", "not-found", "no such"}},
	{apperrors.KindValidation, []string{"invalid argument", "invalid-argument", "already exists", "already-exists", "failed precondition", "failed-precondition"}},
}

var retryable = []errorPattern{
	{apperrors.KindQuota, []string{"quota", "rate limit", "rate-limit", "resource exhausted", "resource-exhausted", "too many requests"}},
	{apperrors.KindNetwork, []string{"network", "timeout", "timed out", "deadline", "unavailable", "connection", "congestion", "econnreset", "econnrefused"}},
	{apperrors.KindServer, []string{"internal", "server error", "aborted"}},
}

// ClassifyError maps a data-store error to a failure kind. Errors already
// wrapped with apperrors.DataStoreError keep their kind; anything else is
// classified by its message.
func ClassifyError(err error) apperrors.Kind {
	if err == nil {
		return apperrors.KindNone
	}
	if apperrors.HasCode(err, apperrors.CodeDataStore) {
		return apperrors.KindOf(err)
	}
	msg := strings.ToLower(err.Error())

	for _, group := range [][]errorPattern{nonRetryable, retryable} {
		for _, p := range group {
			for _, s := range p.patterns {
				if strings.Contains(msg, s) {
					return p.kind
				}
			}
		}
	}
	return apperrors.KindUnknown
}

// classified wraps err as a data-store error carrying its kind.
func classified(err error) error {
	if apperrors.HasCode(err, apperrors.CodeDataStore) {
		return err
	}
	return apperrors.DataStoreError(ClassifyError(err), err)
}

// cause returns the store's own message for a classified error.
func cause(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.CodeDataStore && appErr.Err != nil {
		return appErr.Err.Error()
	}
	return err.Error()
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	return ClassifyError(err).Retryable()
}
