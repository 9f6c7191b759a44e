package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tipvault/relayer/src/domain"
)

func unresolvedRelay(handle string) *domain.Relay {
	relay := &domain.Relay{ID: uuid.New(), Status: domain.RelayStatusPending}
	relay.Fail(&domain.RelayError{Kind: domain.ErrorKindTimedOut, Message: "no receipt", Handle: domain.TrackingHandle(handle)})
	return relay
}

func TestReconciler_Reconcile(t *testing.T) {
	repo := newFakeRelayRepo()
	cache := newFakeStatusCache()
	reg := prometheus.NewRegistry()

	included := unresolvedRelay(string(testHandle))
	pending := unresolvedRelay("0x" + "11" + string(testHandle)[4:])
	noHandle := unresolvedRelay("")
	repo.unresolved = []*domain.Relay{included, pending, noHandle}
	for _, r := range repo.unresolved {
		require.NoError(t, repo.CreateRelay(context.Background(), r))
	}

	receipts := &fakeReceipts{receipts: map[int]*domain.Receipt{1: {TransactionHash: testTxHash, Success: true}}}
	reconciler := NewReconciler(repo, cache, receipts, NewMetrics(reg), ReconcilerConfig{CallTimeout: time.Second})

	settled, err := reconciler.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, 2, receipts.Calls())
	assert.Equal(t, []domain.TrackingHandle{testHandle, domain.TrackingHandle(*pending.Handle)}, receipts.handles)

	stored, err := repo.FindRelayByID(context.Background(), included.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayStatusIncluded, stored.Status)
	assert.Equal(t, testTxHash, *stored.TransactionHash)
	assert.Nil(t, stored.ErrorKind)

	stored, err = repo.FindRelayByID(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayStatusUnknown, stored.Status)

	cached, err := cache.GetRelay(context.Background(), included.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayStatusIncluded, cached.Status)

	assert.Equal(t, 1.0, counterValue(t, reg, "relayer_reconciled_total", map[string]string{"result": "included"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "relayer_reconciled_total", map[string]string{"result": "pending"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "relayer_reconciled_total", map[string]string{"result": "no_handle"}))
}

func TestReconciler_LookupAndStoreErrors(t *testing.T) {
	repo := newFakeRelayRepo()
	repo.unresolved = []*domain.Relay{unresolvedRelay(string(testHandle))}
	reg := prometheus.NewRegistry()

	receipts := &fakeReceipts{err: errors.New("bundler unreachable")}
	reconciler := NewReconciler(repo, newFakeStatusCache(), receipts, NewMetrics(reg), ReconcilerConfig{})

	settled, err := reconciler.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, settled)
	assert.Zero(t, repo.updates)

	receipts.err = nil
	receipts.receipts = map[int]*domain.Receipt{2: {TransactionHash: testTxHash}}
	repo.updateErr = errors.New("connection reset")

	settled, err = reconciler.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, settled)
	assert.Equal(t, 1, repo.updates)
	assert.Equal(t, 2.0, counterValue(t, reg, "relayer_reconciled_total", map[string]string{"result": "error"}))
}

func TestReconciler_BatchSize(t *testing.T) {
	repo := newFakeRelayRepo()
	for i := 0; i < 5; i++ {
		repo.unresolved = append(repo.unresolved, unresolvedRelay(string(testHandle)))
	}
	receipts := &fakeReceipts{}
	reconciler := NewReconciler(repo, newFakeStatusCache(), receipts, NewMetrics(prometheus.NewRegistry()), ReconcilerConfig{BatchSize: 2})

	_, err := reconciler.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, receipts.Calls())
}

func TestReconciler_Schedule(t *testing.T) {
	repo := newFakeRelayRepo()
	repo.unresolved = []*domain.Relay{unresolvedRelay(string(testHandle))}
	receipts := &fakeReceipts{}
	reconciler := NewReconciler(repo, newFakeStatusCache(), receipts, NewMetrics(prometheus.NewRegistry()), ReconcilerConfig{})

	scheduler, err := gocron.NewScheduler()
	require.NoError(t, err)
	defer func() { _ = scheduler.Shutdown() }()

	job, err := reconciler.Schedule(context.Background(), scheduler, 10*time.Millisecond)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, job.ID())

	scheduler.Start()
	assert.Eventually(t, func() bool { return receipts.Calls() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestReconciler_RotatesUncheckedRelaysFirst(t *testing.T) {
	repo := newFakeRelayRepo()
	handles := []string{"0xaaaa", "0xbbbb", "0xcccc"}
	for _, h := range handles {
		repo.unresolved = append(repo.unresolved, unresolvedRelay(h))
	}
	receipts := &fakeReceipts{}
	reconciler := NewReconciler(repo, newFakeStatusCache(), receipts, NewMetrics(prometheus.NewRegistry()), ReconcilerConfig{BatchSize: 2})

	_, err := reconciler.Reconcile(context.Background())
	require.NoError(t, err)
	_, err = reconciler.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.TrackingHandle{"0xaaaa", "0xbbbb", "0xcccc", "0xaaaa"}, receipts.handles)
	assert.Len(t, repo.checked, 4)
}

func TestReconciler_SettledRelaysAreNotMarkedChecked(t *testing.T) {
	repo := newFakeRelayRepo()
	settled := unresolvedRelay(string(testHandle))
	stuck := unresolvedRelay("0xHANDLE")
	repo.unresolved = []*domain.Relay{settled, stuck}
	for _, r := range repo.unresolved {
		require.NoError(t, repo.CreateRelay(context.Background(), r))
	}

	receipts := &fakeReceipts{receipts: map[int]*domain.Receipt{1: {TransactionHash: testTxHash}}}
	reconciler := NewReconciler(repo, newFakeStatusCache(), receipts, NewMetrics(prometheus.NewRegistry()), ReconcilerConfig{})

	n, err := reconciler.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{stuck.ID}, repo.checked)
}
