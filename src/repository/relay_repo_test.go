package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tipvault/relayer/src/domain"
	"github.com/tipvault/relayer/src/testutil"
)

func newRelay() *domain.Relay {
	return &domain.Relay{
		ID:            uuid.New(),
		ChainID:       84532,
		CallerAddress: "0x1234567890123456789012345678901234567890",
		TargetAddress: "0x00000000000000000000000000000000000000AB",
		Signature:     "claim(uint256)",
		Args:          json.RawMessage(`[42]`),
		Status:        domain.RelayStatusPending,
	}
}

func TestRelayRepository_CreateAndFind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewRelayRepository(db)
	ctx := context.Background()

	relay := newRelay()
	require.NoError(t, repo.CreateRelay(ctx, relay))
	assert.False(t, relay.CreatedAt.IsZero())

	found, err := repo.FindRelayByID(ctx, relay.ID)
	require.NoError(t, err)
	assert.Equal(t, relay.CallerAddress, found.CallerAddress)
	assert.Equal(t, domain.RelayStatusPending, found.Status)
	assert.JSONEq(t, `[42]`, string(found.Args))
	assert.Nil(t, found.Handle)

	_, err = repo.FindRelayByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrRelayNotFound)
}

func TestRelayRepository_UpdateRelay(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewRelayRepository(db)
	ctx := context.Background()

	relay := newRelay()
	require.NoError(t, repo.CreateRelay(ctx, relay))

	relay.Fail(&domain.RelayError{Kind: domain.ErrorKindTimedOut, Message: "no receipt after 30 lookups", Handle: "0xabc"})
	require.NoError(t, repo.UpdateRelay(ctx, relay))

	unresolved, err := repo.FindUnresolvedRelays(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, relay.ID, unresolved[0].ID)
	assert.Equal(t, "0xabc", *unresolved[0].Handle)

	relay.Settle(&domain.Settlement{Handle: "0xabc", TransactionHash: "0xtx", Success: true})
	require.NoError(t, repo.UpdateRelay(ctx, relay))

	found, err := repo.FindRelayByID(ctx, relay.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayStatusIncluded, found.Status)
	assert.Equal(t, "0xtx", *found.TransactionHash)
	assert.Nil(t, found.ErrorKind)

	unresolved, err = repo.FindUnresolvedRelays(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	missing := newRelay()
	assert.ErrorIs(t, repo.UpdateRelay(ctx, missing), domain.ErrRelayNotFound)
}

func TestRelayRepository_UnresolvedRotation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewRelayRepository(db)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		relay := newRelay()
		require.NoError(t, repo.CreateRelay(ctx, relay))
		relay.Fail(&domain.RelayError{Kind: domain.ErrorKindSubmissionAmbiguous, Message: "EOF", Handle: "0xabc"})
		require.NoError(t, repo.UpdateRelay(ctx, relay))
		ids = append(ids, relay.ID)
	}

	first, err := repo.FindUnresolvedRelays(ctx, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, ids[:2], []uuid.UUID{first[0].ID, first[1].ID})

	require.NoError(t, repo.MarkRelaysChecked(ctx, ids[:2], time.Now()))

	next, err := repo.FindUnresolvedRelays(ctx, 2)
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, ids[2], next[0].ID)
	require.NotNil(t, next[1].CheckedAt)

	assert.NoError(t, repo.MarkRelaysChecked(ctx, nil, time.Now()))
}
