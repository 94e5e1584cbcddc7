package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// Stored failure reasons set by the engine itself.
const (
	ReasonAmountMismatch      = "amount_mismatch"
	ReasonDuplicateSettlement = "duplicate_settlement"
	ReasonOrderCanceled       = "order_canceled"
	ReasonExpired             = "expired"
	ReasonInitiateFailed      = "initiate_failed"
)

// Repository persists payment attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	FindByTransactionIDForUpdate(ctx context.Context, transactionID string) (*models.Payment, error)
	FindByExternalRef(ctx context.Context, externalRef string) (*models.Payment, error)
	FindByExternalRefForUpdate(ctx context.Context, externalRef string) (*models.Payment, error)
	FindPendingForUpdate(ctx context.Context, orderID uuid.UUID, method enums.PaymentMethod) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	HasPaid(ctx context.Context, orderID uuid.UUID, exclude uuid.UUID) (bool, error)
	RecordIntent(ctx context.Context, id uuid.UUID, externalRef, redirectURL *string, raw json.RawMessage) error
	Settle(ctx context.Context, id uuid.UUID, update Settlement) error
	FailPendingForOrder(ctx context.Context, orderID uuid.UUID, reason string, at time.Time) (int64, error)
}

// Settlement moves a pending payment to a terminal status.
type Settlement struct {
	Status        enums.PaymentStatus
	ExternalRef   *string
	FailureReason *string
	Raw           json.RawMessage
	ProcessedAt   time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if payment.Status == "" {
		payment.Status = enums.PaymentStatusPending
	}
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment reference already exists")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment")
	}
	return nil
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.take(r.db.WithContext(ctx).Where("transaction_id = ?", transactionID))
}

func (r *repository) FindByTransactionIDForUpdate(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.take(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transaction_id = ?", transactionID))
}

func (r *repository) FindByExternalRef(ctx context.Context, externalRef string) (*models.Payment, error) {
	return r.take(r.db.WithContext(ctx).Where("external_ref = ?", externalRef))
}

func (r *repository) FindByExternalRefForUpdate(ctx context.Context, externalRef string) (*models.Payment, error) {
	return r.take(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_ref = ?", externalRef))
}

// FindPendingForUpdate locks the newest pending payment of the given method.
func (r *repository) FindPendingForUpdate(ctx context.Context, orderID uuid.UUID, method enums.PaymentMethod) (*models.Payment, error) {
	return r.take(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND method = ? AND status = ?", orderID, method, enums.PaymentStatusPending).
		Order("created_at DESC, id DESC"))
}

func (r *repository) take(query *gorm.DB) (*models.Payment, error) {
	var payment models.Payment
	if err := query.Take(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return &payment, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return rows, nil
}

// HasPaid reports whether any payment of the order other than exclude is paid.
func (r *repository) HasPaid(ctx context.Context, orderID uuid.UUID, exclude uuid.UUID) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPaid)
	if exclude != uuid.Nil {
		query = query.Where("id <> ?", exclude)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count paid payments")
	}
	return count > 0, nil
}

// RecordIntent stores what the gateway returned at initiation.
func (r *repository) RecordIntent(ctx context.Context, id uuid.UUID, externalRef, redirectURL *string, raw json.RawMessage) error {
	updates := map[string]any{}
	if externalRef != nil {
		updates["external_ref"] = *externalRef
	}
	if redirectURL != nil {
		updates["redirect_url"] = *redirectURL
	}
	if len(raw) > 0 {
		updates["raw_response"] = []byte(raw)
	}
	if len(updates) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		if db.IsUniqueViolation(err, "external_ref") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "external reference already used")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment intent")
	}
	return nil
}

// Settle writes the terminal status only if the payment is still pending.
// Terminal payments never change again.
func (r *repository) Settle(ctx context.Context, id uuid.UUID, update Settlement) error {
	if !update.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeValidation, "settlement status must be terminal")
	}
	updates := map[string]any{
		"status":       update.Status,
		"processed_at": update.ProcessedAt,
	}
	if update.ExternalRef != nil && *update.ExternalRef != "" {
		updates["external_ref"] = *update.ExternalRef
	}
	if update.FailureReason != nil {
		updates["failure_reason"] = *update.FailureReason
	}
	if len(update.Raw) > 0 {
		updates["raw_response"] = []byte(update.Raw)
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error, "external_ref") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, res.Error, "external reference already used")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "settle payment")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already settled").
			WithDetails(map[string]any{"payment_id": id.String()})
	}
	return nil
}

// FailPendingForOrder fails every pending payment of the order.
func (r *repository) FailPendingForOrder(ctx context.Context, orderID uuid.UUID, reason string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": reason,
			"processed_at":   at,
		})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "fail pending payments")
	}
	return res.RowsAffected, nil
}

// NewTransactionID returns the internal reference sent to gateways.
func NewTransactionID() string {
	return "TXN-" + uuid.NewString()
}
