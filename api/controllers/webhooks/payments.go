// Package webhooks exposes the public gateway callback endpoints.
package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/api/responses"
	"github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/internal/settlement"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

const maxCallbackBytes = 1 << 20

// CallbackService reconciles one gateway callback.
type CallbackService interface {
	Handle(ctx context.Context, method enums.PaymentMethod, cb payments.Callback) (*settlement.ReconcileResult, error)
}

type ackResponse struct {
	Received bool `json:"received"`
}

type returnResponse struct {
	OrderID       string              `json:"order_id,omitempty"`
	TransactionID string              `json:"transaction_id,omitempty"`
	Status        enums.PaymentStatus `json:"status,omitempty"`
	Outcome       string              `json:"outcome"`
}

// PaymentWebhook receives server-to-server notifications. Anything the
// gateway cannot fix by retrying is acknowledged without detail.
func PaymentWebhook(svc CallbackService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		method, err := parseMethod(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		// The body is authoritative; the query only carries the callback when
		// the gateway sent an empty POST.
		cb := payments.Callback{Source: payments.CallbackWebhook, Body: body}
		if query := r.URL.Query(); len(body) == 0 && len(query) > 0 {
			cb.Params = query
		}

		if _, err := svc.Handle(ctx, method, cb); err != nil {
			if retryable(err) {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			warnDropped(ctx, logg, method, err)
		}
		responses.WriteSuccess(w, ackResponse{Received: true})
	}
}

// PaymentReturn handles the browser redirect back from a gateway. The
// outcome is still driven by the signed parameters, never by the redirect
// itself.
func PaymentReturn(svc CallbackService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		method, err := parseMethod(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Handle(ctx, method, payments.Callback{
			Source: payments.CallbackReturn,
			Params: r.URL.Query(),
		})
		if err != nil {
			if retryable(err) {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			warnDropped(ctx, logg, method, err)
			responses.WriteSuccess(w, ackResponse{Received: true})
			return
		}

		out := returnResponse{
			TransactionID: result.TransactionID,
			Status:        result.Status,
			Outcome:       result.Outcome,
		}
		if result.OrderID != uuid.Nil {
			out.OrderID = result.OrderID.String()
		}
		responses.WriteSuccess(w, out)
	}
}

func parseMethod(r *http.Request) (enums.PaymentMethod, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "method"))
	method, err := enums.ParsePaymentMethod(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown payment gateway")
	}
	return method, nil
}

func retryable(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	return pkgerrors.MetadataFor(typed.Code()).Retryable
}

func warnDropped(ctx context.Context, logg *logger.Logger, method enums.PaymentMethod, err error) {
	if logg == nil {
		return
	}
	logg.Warn(logg.WithFields(ctx, map[string]any{
		"method": string(method),
		"error":  err.Error(),
	}), "payment callback dropped")
}
