package middleware

import (
	"fmt"
	"net/http"

	"github.com/angelmondragon/settlement-engine/api/responses"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

// Recoverer converts a handler panic into the standard 500 envelope.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer recoverInto(w, r, logg)
			next.ServeHTTP(w, r)
		})
	}
}

// recoverInto must stay the deferred call itself for recover to work.
// http.ErrAbortHandler keeps propagating so net/http drops the connection.
func recoverInto(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	rec := recover()
	switch rec {
	case nil:
		return
	case http.ErrAbortHandler:
		panic(rec)
	}

	cause, ok := rec.(error)
	if !ok {
		cause = fmt.Errorf("%v", rec)
	}
	ctx := r.Context()
	if logg != nil {
		ctx = logg.WithField(ctx, "panic_type", fmt.Sprintf("%T", rec))
	}
	responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, fmt.Errorf("recovered panic: %w", cause), "handler panicked"))
}
