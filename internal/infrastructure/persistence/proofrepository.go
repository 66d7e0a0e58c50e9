package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"bitpos/internal/domain/payment"
	apperrors "bitpos/internal/shared/errors"
)

// paymentProofModel is the storage shape of a payment proof.
type paymentProofModel struct {
	ID          string `gorm:"primaryKey;size:32"`
	OrderID     string `gorm:"index;size:64;not null"`
	PaymentHash string `gorm:"uniqueIndex;size:128;not null"`
	Preimage    string `gorm:"size:128"`
	AmountSats  int64  `gorm:"not null"`
	Method      string `gorm:"size:16;not null"`
	IsOffline   bool
	ReceivedAt  time.Time `gorm:"not null"`
	SyncedAt    *time.Time
}

func (paymentProofModel) TableName() string { return "payment_proofs" }

func toModel(p *payment.PaymentProof) *paymentProofModel {
	return &paymentProofModel{
		ID:          p.ID,
		OrderID:     p.OrderID,
		PaymentHash: p.PaymentHash,
		Preimage:    p.Preimage,
		AmountSats:  p.AmountSats,
		Method:      string(p.Method),
		IsOffline:   p.IsOffline,
		ReceivedAt:  p.ReceivedAt,
		SyncedAt:    p.SyncedAt,
	}
}

func fromModel(m *paymentProofModel) *payment.PaymentProof {
	return &payment.PaymentProof{
		ID:          m.ID,
		OrderID:     m.OrderID,
		PaymentHash: m.PaymentHash,
		Preimage:    m.Preimage,
		AmountSats:  m.AmountSats,
		Method:      payment.Method(m.Method),
		IsOffline:   m.IsOffline,
		ReceivedAt:  m.ReceivedAt,
		SyncedAt:    m.SyncedAt,
	}
}

// ProofRepository stores payment proofs in the local database so a
// settled sale survives a crash before the back office syncs it.
type ProofRepository struct {
	db *gorm.DB
}

func NewProofRepository(db *gorm.DB) *ProofRepository {
	return &ProofRepository{db: db}
}

// Save inserts a proof. Saving the same payment hash twice is treated
// as already recorded, not an error.
func (r *ProofRepository) Save(ctx context.Context, proof *payment.PaymentProof) error {
	err := r.db.WithContext(ctx).Create(toModel(proof)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return apperrors.NewInternalError("failed to save payment proof").WithCause(err)
	}
	return nil
}

// GetByOrderID returns the proof recorded for an order.
func (r *ProofRepository) GetByOrderID(ctx context.Context, orderID string) (*payment.PaymentProof, error) {
	var m paymentProofModel
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("payment proof not found", orderID)
		}
		return nil, apperrors.NewInternalError("failed to load payment proof").WithCause(err)
	}
	return fromModel(&m), nil
}

// ListUnsynced returns proofs the back office has not acknowledged yet,
// oldest first.
func (r *ProofRepository) ListUnsynced(ctx context.Context, limit int) ([]*payment.PaymentProof, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []paymentProofModel
	err := r.db.WithContext(ctx).
		Where("synced_at IS NULL").
		Order("received_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list payment proofs").WithCause(err)
	}

	proofs := make([]*payment.PaymentProof, len(models))
	for i := range models {
		proofs[i] = fromModel(&models[i])
	}
	return proofs, nil
}

// MarkSynced stamps a proof as acknowledged.
func (r *ProofRepository) MarkSynced(ctx context.Context, proofID string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&paymentProofModel{}).
		Where("id = ?", proofID).
		Update("synced_at", at.UTC())
	if res.Error != nil {
		return apperrors.NewInternalError("failed to mark proof synced").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("payment proof not found", proofID)
	}
	return nil
}
