package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogStatuses(t *testing.T) {
	want := map[Code]int{
		CodeValidation:        http.StatusBadRequest,
		CodeUnauthorized:      http.StatusUnauthorized,
		CodeForbidden:         http.StatusForbidden,
		CodeNotFound:          http.StatusNotFound,
		CodeConflict:          http.StatusConflict,
		CodeStateConflict:     http.StatusUnprocessableEntity,
		CodeIdempotency:       http.StatusConflict,
		CodeRateLimit:         http.StatusTooManyRequests,
		CodeInternal:          http.StatusInternalServerError,
		CodeDependency:        http.StatusServiceUnavailable,
		CodeInsufficientStock: http.StatusConflict,
		CodePaymentGateway:    http.StatusBadGateway,
		CodeSignature:         http.StatusUnauthorized,
	}
	require.Len(t, catalog, len(want))
	for code, status := range want {
		meta := MetadataFor(code)
		assert.Equal(t, status, meta.HTTPStatus, code)
		assert.NotEmpty(t, meta.PublicMessage, code)
	}
}

func TestRetryableAndDetailFlags(t *testing.T) {
	for _, code := range []Code{CodeInternal, CodeDependency, CodePaymentGateway} {
		assert.True(t, MetadataFor(code).Retryable, code)
	}
	for _, code := range []Code{CodeValidation, CodeStateConflict, CodeInsufficientStock} {
		meta := MetadataFor(code)
		assert.False(t, meta.Retryable, code)
		assert.True(t, meta.DetailsAllowed, code)
	}
	assert.False(t, MetadataFor(CodeSignature).DetailsAllowed)
	assert.False(t, MetadataFor(CodeInternal).DetailsAllowed)
}

func TestUnknownCodeRendersAsInternal(t *testing.T) {
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestErrorAccessors(t *testing.T) {
	err := New(CodeValidation, "missing sku")
	assert.Equal(t, CodeValidation, err.Code())
	assert.Equal(t, "missing sku", err.Message())
	assert.Nil(t, err.Details())
	assert.Equal(t, "VALIDATION_ERROR: missing sku", err.Error())

	same := err.WithDetails(map[string]string{"sku": "required"})
	assert.Same(t, err, same)
	assert.Equal(t, map[string]string{"sku": "required"}, err.Details())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Empty(t, nilErr.Message())
	assert.Nil(t, nilErr.WithDetails("x"))
	assert.NoError(t, nilErr.Unwrap())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(CodePaymentGateway, cause, "initiate gateway_a")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodePaymentGateway, err.Code())

	bare := Wrap(CodeConflict, nil, "duplicate")
	assert.NoError(t, bare.Unwrap())
}

func TestAsAndIsCodeFollowChain(t *testing.T) {
	inner := New(CodeInsufficientStock, "sold out")
	outer := fmt.Errorf("reserve: %w", inner)

	require.NotNil(t, As(outer))
	assert.Same(t, inner, As(outer))
	assert.True(t, IsCode(outer, CodeInsufficientStock))
	assert.False(t, IsCode(outer, CodeNotFound))
	assert.False(t, IsCode(nil, CodeInternal))
	assert.Nil(t, As(stderrors.New("plain")))
	assert.Nil(t, As(nil))
}

func TestDumpCollectsChain(t *testing.T) {
	dump := Dump(Wrap(CodeDependency, stderrors.New("connection refused"), "insert order"))
	assert.Equal(t, CodeDependency, dump.Code)
	assert.Len(t, dump.Chain, 2)
}

func TestPostgresDetailsFromEitherDriver(t *testing.T) {
	pgxErr := fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23514", ConstraintName: "inventory_items_available_nonnegative", TableName: "inventory_items"})
	details, ok := PostgresDetails(pgxErr)
	require.True(t, ok)
	assert.Equal(t, "23514", details.Code)
	assert.Equal(t, "inventory_items", details.Table)

	dump := Dump(Wrap(CodeDependency, &pq.Error{Code: "23505", Constraint: "payments_external_ref_key"}, "insert payment"))
	require.NotNil(t, dump.Postgres)
	assert.Equal(t, "payments_external_ref_key", dump.Postgres.Constraint)
	assert.Equal(t, "23505", dump.Fields()["pg_code"])

	_, ok = PostgresDetails(stderrors.New("plain"))
	assert.False(t, ok)
}
