package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitpos/internal/domain/payment"
	apperrors "bitpos/internal/shared/errors"
)

func newTestRepo(t *testing.T) *ProofRepository {
	t.Helper()
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	return NewProofRepository(db)
}

func newTestProof(t *testing.T, orderID, hash string) *payment.PaymentProof {
	t.Helper()
	proof, err := payment.NewPaymentProof(orderID, hash, "pre1", 1000, payment.MethodLightning, false)
	require.NoError(t, err)
	return proof
}

func TestSaveAndGetByOrderID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	proof := newTestProof(t, "order-1", "hash1")
	require.NoError(t, repo.Save(ctx, proof))

	got, err := repo.GetByOrderID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, proof.ID, got.ID)
	assert.Equal(t, "hash1", got.PaymentHash)
	assert.Equal(t, "pre1", got.Preimage)
	assert.Equal(t, payment.MethodLightning, got.Method)
	assert.Nil(t, got.SyncedAt)
}

func TestGetByOrderIDNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByOrderID(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestListUnsynced(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := newTestProof(t, "order-1", "hash1")
	second := newTestProof(t, "order-2", "hash2")
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	proofs, err := repo.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, proofs, 2)

	require.NoError(t, repo.MarkSynced(ctx, first.ID, time.Now()))

	proofs, err = repo.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	require.Len(t, proofs, 1)
	assert.Equal(t, second.ID, proofs[0].ID)
}

func TestMarkSynced(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	proof := newTestProof(t, "order-1", "hash1")
	require.NoError(t, repo.Save(ctx, proof))
	require.NoError(t, repo.MarkSynced(ctx, proof.ID, time.Now()))

	got, err := repo.GetByOrderID(ctx, "order-1")
	require.NoError(t, err)
	assert.NotNil(t, got.SyncedAt)
}

func TestMarkSyncedUnknownProof(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.MarkSynced(context.Background(), "proof_missing", time.Now())
	assert.True(t, apperrors.IsNotFound(err))
}
