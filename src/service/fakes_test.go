package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/tipvault/relayer/erc4337"
	"github.com/tipvault/relayer/src/domain"
)

var (
	testCaller = common.HexToAddress("0x1234567890123456789012345678901234567890")
	testTarget = common.HexToAddress("0x00000000000000000000000000000000000000AB")
	testTxHash = "0x9f8e7d6c5b4a39281706f5e4d3c2b1a09f8e7d6c5b4a39281706f5e4d3c2b1a0"
)

type fakeEstimator struct {
	calls    int
	errs     []error
	estimate *Estimate
}

func (f *fakeEstimator) Estimate(ctx context.Context, sender common.Address, call *EncodedCall) (*Estimate, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.estimate, nil
}

type fakeSponsor struct {
	calls       int
	errs        []error
	sponsorship *erc4337.Sponsorship
	seen        []*erc4337.Operation
	// after runs once the sponsorship is returned
	after func()
}

func (f *fakeSponsor) Sponsor(ctx context.Context, op *erc4337.Operation) (*erc4337.Sponsorship, error) {
	f.calls++
	snapshot := *op
	f.seen = append(f.seen, &snapshot)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.after != nil {
		f.after()
	}
	return f.sponsorship, nil
}

type fakeSubmitter struct {
	calls     int
	err       error
	handle    domain.TrackingHandle
	submitted []*erc4337.Operation
}

func (f *fakeSubmitter) Submit(ctx context.Context, op *erc4337.Operation) (domain.TrackingHandle, error) {
	f.calls++
	f.submitted = append(f.submitted, op)
	if f.err != nil {
		return "", f.err
	}
	return f.handle, nil
}

// fakeReceipts answers the Nth lookup with receipts[N-1]; missing entries are empty.
type fakeReceipts struct {
	mu       sync.Mutex
	calls    int
	receipts map[int]*domain.Receipt
	err      error
	handles  []domain.TrackingHandle
}

func (f *fakeReceipts) LookupReceipt(ctx context.Context, handle domain.TrackingHandle) (*domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.handles = append(f.handles, handle)
	if f.err != nil {
		return nil, f.err
	}
	return f.receipts[f.calls], nil
}

func (f *fakeReceipts) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRelayRepo struct {
	mu         sync.Mutex
	relays     map[uuid.UUID]domain.Relay
	createErr  error
	updateErr  error
	updates    int
	unresolved []*domain.Relay
	checked    []uuid.UUID
}

func newFakeRelayRepo() *fakeRelayRepo {
	return &fakeRelayRepo{relays: map[uuid.UUID]domain.Relay{}}
}

func (f *fakeRelayRepo) CreateRelay(ctx context.Context, relay *domain.Relay) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.relays[relay.ID] = *relay
	return nil
}

func (f *fakeRelayRepo) UpdateRelay(ctx context.Context, relay *domain.Relay) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return f.updateErr
	}
	f.relays[relay.ID] = *relay
	return nil
}

func (f *fakeRelayRepo) FindRelayByID(ctx context.Context, id uuid.UUID) (*domain.Relay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	relay, ok := f.relays[id]
	if !ok {
		return nil, domain.ErrRelayNotFound
	}
	return &relay, nil
}

// FindUnresolvedRelays orders like the database: never checked first, then by last check.
func (f *fakeRelayRepo) FindUnresolvedRelays(ctx context.Context, limit int) ([]*domain.Relay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var open []*domain.Relay
	for _, relay := range f.unresolved {
		if relay.Status == domain.RelayStatusIncluded {
			continue
		}
		open = append(open, relay)
	}
	sort.SliceStable(open, func(i, j int) bool {
		a, b := open[i].CheckedAt, open[j].CheckedAt
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	if len(open) > limit {
		return open[:limit], nil
	}
	return open, nil
}

func (f *fakeRelayRepo) MarkRelaysChecked(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, ids...)
	for _, relay := range f.unresolved {
		for _, id := range ids {
			if relay.ID == id {
				checkedAt := at
				relay.CheckedAt = &checkedAt
			}
		}
	}
	return nil
}

type fakeStatusCache struct {
	mu     sync.Mutex
	relays map[uuid.UUID]domain.Relay
	sets   int
}

func newFakeStatusCache() *fakeStatusCache {
	return &fakeStatusCache{relays: map[uuid.UUID]domain.Relay{}}
}

func (f *fakeStatusCache) SetRelay(ctx context.Context, relay *domain.Relay) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.relays[relay.ID] = *relay
	return nil
}

func (f *fakeStatusCache) GetRelay(ctx context.Context, id uuid.UUID) (*domain.Relay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	relay, ok := f.relays[id]
	if !ok {
		return nil, nil
	}
	return &relay, nil
}
