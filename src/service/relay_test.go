package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tipvault/relayer/src/domain"
)

type fakeRelayer struct {
	settlement *domain.Settlement
	err        error
	// seenStatus is the stored status while the run is in flight
	seenStatus domain.RelayStatus
	repo       *fakeRelayRepo
	cancel     context.CancelFunc
}

func (f *fakeRelayer) Relay(ctx context.Context, req domain.RelayRequest) (*domain.Settlement, error) {
	for _, r := range f.repo.relays {
		f.seenStatus = r.Status
	}
	if f.cancel != nil {
		f.cancel()
	}
	return f.settlement, f.err
}

// counterValue sums every sample of the named counter whose labels include want.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func newTestRelayService(relayer *fakeRelayer) (*RelayService, *fakeRelayRepo, *fakeStatusCache, *prometheus.Registry) {
	repo := newFakeRelayRepo()
	cache := newFakeStatusCache()
	reg := prometheus.NewRegistry()
	relayer.repo = repo
	return NewRelayService(relayer, repo, cache, NewMetrics(reg), 84532), repo, cache, reg
}

func TestRelayService_Relay_Included(t *testing.T) {
	relayer := &fakeRelayer{settlement: &domain.Settlement{Handle: testHandle, TransactionHash: testTxHash, Success: true}}
	svc, repo, cache, reg := newTestRelayService(relayer)

	relay, err := svc.Relay(context.Background(), claimRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.RelayStatusPending, relayer.seenStatus)
	assert.Equal(t, domain.RelayStatusIncluded, relay.Status)
	assert.Equal(t, string(testHandle), *relay.Handle)
	assert.Equal(t, testTxHash, *relay.TransactionHash)
	assert.True(t, *relay.Success)
	assert.Equal(t, int64(84532), relay.ChainID)
	assert.Equal(t, "claim(uint256)", relay.Signature)
	assert.JSONEq(t, `[42]`, string(relay.Args))

	stored, err := repo.FindRelayByID(context.Background(), relay.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayStatusIncluded, stored.Status)

	cached, err := cache.GetRelay(context.Background(), relay.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayStatusIncluded, cached.Status)
	assert.Equal(t, 2, cache.sets)

	assert.Equal(t, 1.0, counterValue(t, reg, "relayer_relays_total", map[string]string{"status": "included"}))
}

func TestRelayService_Relay_Failures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus domain.RelayStatus
		wantKind   domain.ErrorKind
		wantHandle bool
	}{
		{
			name:       "reverted",
			err:        domain.NewRelayError(domain.ErrorKindSimulationReverted, "execution reverted", nil),
			wantStatus: domain.RelayStatusFailed,
			wantKind:   domain.ErrorKindSimulationReverted,
		},
		{
			name:       "timed out",
			err:        &domain.RelayError{Kind: domain.ErrorKindTimedOut, Message: "no receipt after 30 lookups", Handle: testHandle},
			wantStatus: domain.RelayStatusUnknown,
			wantKind:   domain.ErrorKindTimedOut,
			wantHandle: true,
		},
		{
			name:       "ambiguous submission",
			err:        &domain.RelayError{Kind: domain.ErrorKindSubmissionAmbiguous, Message: "EOF", Handle: testHandle},
			wantStatus: domain.RelayStatusUnknown,
			wantKind:   domain.ErrorKindSubmissionAmbiguous,
			wantHandle: true,
		},
		{
			name:       "cancelled before submission",
			err:        &domain.RelayError{Kind: domain.ErrorKindCancelled, Message: "cancelled before submission: context canceled"},
			wantStatus: domain.RelayStatusFailed,
			wantKind:   domain.ErrorKindCancelled,
		},
		{
			name:       "untyped error",
			err:        errors.New("boom"),
			wantStatus: domain.RelayStatusFailed,
			wantKind:   domain.ErrorKindInvalidOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _, reg := newTestRelayService(&fakeRelayer{err: tt.err})

			relay, err := svc.Relay(context.Background(), claimRequest())
			relayErr := requireRelayError(t, err, tt.wantKind)
			require.NotNil(t, relay)

			assert.Equal(t, tt.wantStatus, relay.Status)
			assert.Equal(t, string(tt.wantKind), *relay.ErrorKind)
			assert.Equal(t, relayErr.Message, *relay.ErrorMessage)
			if tt.wantHandle {
				assert.Equal(t, string(testHandle), *relay.Handle)
			} else {
				assert.Nil(t, relay.Handle)
			}

			stored, err := repo.FindRelayByID(context.Background(), relay.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stored.Status)
			assert.Equal(t, 1.0, counterValue(t, reg, "relayer_relays_total", map[string]string{"kind": string(tt.wantKind)}))
		})
	}
}

func TestRelayService_Relay_StoresOutcomeAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	relayer := &fakeRelayer{
		err:    &domain.RelayError{Kind: domain.ErrorKindCancelled, Message: "stopped waiting", Handle: testHandle},
		cancel: cancel,
	}
	svc, repo, _, _ := newTestRelayService(relayer)

	relay, err := svc.Relay(ctx, claimRequest())
	requireRelayError(t, err, domain.ErrorKindCancelled)

	stored, err := repo.FindRelayByID(context.Background(), relay.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayStatusUnknown, stored.Status)
	assert.Equal(t, string(testHandle), *stored.Handle)
}

func TestRelayService_Relay_CreateFails(t *testing.T) {
	relayer := &fakeRelayer{}
	svc, repo, _, _ := newTestRelayService(relayer)
	repo.createErr = errors.New("connection refused")

	relay, err := svc.Relay(context.Background(), claimRequest())
	assert.Nil(t, relay)

	var domainErr domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrorCodeInternalProcess.Name, domainErr.Name())
}

func TestRelayService_GetRelay(t *testing.T) {
	svc, repo, cache, _ := newTestRelayService(&fakeRelayer{})
	ctx := context.Background()

	stored := &domain.Relay{ID: uuid.New(), Status: domain.RelayStatusUnknown}
	require.NoError(t, repo.CreateRelay(ctx, stored))

	relay, err := svc.GetRelay(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayStatusUnknown, relay.Status)
	assert.Equal(t, 1, cache.sets, "a repository hit warms the cache")

	// the cache wins once populated
	cache.relays[stored.ID] = domain.Relay{ID: stored.ID, Status: domain.RelayStatusIncluded}
	relay, err = svc.GetRelay(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayStatusIncluded, relay.Status)

	_, err = svc.GetRelay(ctx, uuid.New())
	var domainErr domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, 404, domainErr.HTTPStatus())
}
