package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	lentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/entity"
	pentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
)

// memStore keeps providers and lead assignments in memory with the same
// assign-if-open semantics as the Postgres repo.
type memStore struct {
	mu        sync.Mutex
	providers []*pentity.Provider
	assigned  map[string]string
	failNext  error
}

func newMemStore(ps ...*pentity.Provider) *memStore {
	return &memStore{providers: ps, assigned: map[string]string{}}
}

func (m *memStore) FindCandidateProviders(ctx context.Context) ([]*pentity.Provider, error) {
	return m.providers, nil
}

func (m *memStore) AssignIfOpen(ctx context.Context, leadID, providerID string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return false, "", err
	}
	if cur, ok := m.assigned[leadID]; ok {
		return false, cur, nil
	}
	m.assigned[leadID] = providerID
	return true, providerID, nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) LeadRouted(ctx context.Context, l *lentity.Lead, p *pentity.Provider, to string) error {
	args := m.Called(ctx, l, p, to)
	return args.Error(0)
}

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func routable(id string, tier pentity.Tier, zips ...string) *pentity.Provider {
	exp := testNow.Add(14 * 24 * time.Hour)
	email := id + "@example.com"
	return &pentity.Provider{
		ID:               id,
		Name:             id,
		Email:            &email,
		ListingTier:      tier,
		IsFeatured:       tier == pentity.TierFeatured,
		Status:           pentity.StatusVerified,
		EligibleForLeads: true,
		TrialStatus:      pentity.TrialActive,
		TrialExpiresAt:   &exp,
		ZipCodes:         pentity.NewZipSet(zips...),
		UpdatedAt:        testNow,
	}
}

func newTestEngine(store *memStore, n Notifier, nationwide bool) *Engine {
	return NewEngine(Config{NationwideFallback: nationwide}, store, store, n, nil).
		WithClock(func() time.Time { return testNow })
}

func TestRouteFeaturedBeatsBasic(t *testing.T) {
	a := routable("A", pentity.TierFeatured, "90017")
	b := routable("B", pentity.TierBasic, "90017")
	store := newMemStore(b, a)
	n := new(mockNotifier)
	n.On("LeadRouted", mock.Anything, mock.Anything, a, "A@example.com").Return(nil).Once()

	lead := &lentity.Lead{ID: "L1", Zip: "90017", State: "CA", Status: lentity.StatusOpen}
	res, err := newTestEngine(store, n, false).Route(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, "A", res.ProviderID)
	assert.True(t, res.Routed)
	assert.True(t, res.Notified)
	assert.Equal(t, MatchZip, res.Match)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, lentity.StatusClaimed, lead.Status)
	n.AssertExpectations(t)
}

func TestRouteUnservedStaysOpen(t *testing.T) {
	store := newMemStore(routable("A", pentity.TierFeatured, "90017"))
	n := new(mockNotifier)

	lead := &lentity.Lead{ID: "L2", Zip: "10001", State: "NY", Status: lentity.StatusOpen}
	res, err := newTestEngine(store, n, true).Route(context.Background(), lead)
	require.NoError(t, err)

	assert.False(t, res.Routed)
	assert.Empty(t, res.ProviderID)
	assert.False(t, res.Notified)
	assert.Equal(t, lentity.StatusOpen, lead.Status)
	assert.Empty(t, store.assigned)
	n.AssertNotCalled(t, "LeadRouted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRouteSkipsIneligible(t *testing.T) {
	expired := routable("EXP", pentity.TierFeatured, "90017")
	yesterday := testNow.Add(-24 * time.Hour)
	expired.TrialExpiresAt = &yesterday
	basic := routable("OK", pentity.TierBasic, "90017")
	store := newMemStore(expired, basic)
	n := new(mockNotifier)
	n.On("LeadRouted", mock.Anything, mock.Anything, basic, mock.Anything).Return(nil)

	res, err := newTestEngine(store, n, false).Route(context.Background(),
		&lentity.Lead{ID: "L3", Zip: "90017", State: "CA", Status: lentity.StatusOpen})
	require.NoError(t, err)
	assert.Equal(t, "OK", res.ProviderID)
}

func TestRouteIsIdempotent(t *testing.T) {
	a := routable("A", pentity.TierBasic, "90017")
	store := newMemStore(a)
	n := new(mockNotifier)
	n.On("LeadRouted", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	eng := newTestEngine(store, n, false)

	first, err := eng.Route(context.Background(), &lentity.Lead{ID: "L4", Zip: "90017", Status: lentity.StatusOpen})
	require.NoError(t, err)

	// a better provider appears; a stale OPEN copy of the lead routes again
	store.providers = append(store.providers, routable("F", pentity.TierFeatured, "90017"))
	second, err := eng.Route(context.Background(), &lentity.Lead{ID: "L4", Zip: "90017", Status: lentity.StatusOpen})
	require.NoError(t, err)

	assert.Equal(t, first.ProviderID, second.ProviderID)
	assert.True(t, second.AlreadyAssigned)
	assert.False(t, second.Notified)

	routedTo := "A"
	third, err := eng.Route(context.Background(), &lentity.Lead{ID: "L4", Status: lentity.StatusClaimed, RoutedToID: &routedTo})
	require.NoError(t, err)
	assert.Equal(t, "A", third.ProviderID)
	assert.True(t, third.AlreadyAssigned)
	n.AssertNumberOfCalls(t, "LeadRouted", 1)
}

func TestRouteConcurrentSingleAssignment(t *testing.T) {
	var ps []*pentity.Provider
	for _, id := range []string{"A", "B", "C"} {
		ps = append(ps, routable(id, pentity.TierBasic, "90017"))
	}
	store := newMemStore(ps...)
	n := new(mockNotifier)
	n.On("LeadRouted", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	eng := newTestEngine(store, n, false)

	var wg sync.WaitGroup
	results := make([]Result, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := eng.Route(context.Background(), &lentity.Lead{ID: "L5", Zip: "90017", Status: lentity.StatusOpen})
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, store.assigned["L5"], r.ProviderID)
	}
	n.AssertNumberOfCalls(t, "LeadRouted", 1)
}

func TestRoutePersistenceFailureIsRetryable(t *testing.T) {
	store := newMemStore(routable("A", pentity.TierBasic, "90017"))
	store.failNext = errors.New("connection reset")
	n := new(mockNotifier)
	n.On("LeadRouted", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	eng := newTestEngine(store, n, false)
	lead := &lentity.Lead{ID: "L6", Zip: "90017", Status: lentity.StatusOpen}

	_, err := eng.Route(context.Background(), lead)
	require.Error(t, err)
	assert.Equal(t, lentity.StatusOpen, lead.Status)
	n.AssertNotCalled(t, "LeadRouted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	res, err := eng.Route(context.Background(), lead)
	require.NoError(t, err)
	assert.Equal(t, "A", res.ProviderID)
	assert.True(t, res.Notified)
}

func TestRouteNotificationFailureKeepsAssignment(t *testing.T) {
	store := newMemStore(routable("A", pentity.TierBasic, "90017"))
	n := new(mockNotifier)
	n.On("LeadRouted", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	res, err := newTestEngine(store, n, false).Route(context.Background(),
		&lentity.Lead{ID: "L7", Zip: "90017", Status: lentity.StatusOpen})
	require.NoError(t, err)
	assert.True(t, res.Routed)
	assert.False(t, res.Notified)
	assert.Equal(t, "A", store.assigned["L7"])
}

func TestRouteUsesContactEmailPrecedence(t *testing.T) {
	p := routable("A", pentity.TierBasic, "90017")
	claim := "claim@example.com"
	notify := "alerts@example.com"
	p.ClaimEmail = &claim
	p.NotificationEmail = &notify
	store := newMemStore(p)
	n := new(mockNotifier)
	n.On("LeadRouted", mock.Anything, mock.Anything, p, "alerts@example.com").Return(nil).Once()

	_, err := newTestEngine(store, n, false).Route(context.Background(),
		&lentity.Lead{ID: "L8", Zip: "90017", Status: lentity.StatusOpen})
	require.NoError(t, err)
	n.AssertExpectations(t)
}

func TestRouteNationwideFallback(t *testing.T) {
	nationwide := routable("N", pentity.TierBasic)
	store := newMemStore(nationwide)
	n := new(mockNotifier)
	n.On("LeadRouted", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	res, err := newTestEngine(store, n, true).Route(context.Background(),
		&lentity.Lead{ID: "L9", Zip: "10001", State: "NY", Status: lentity.StatusOpen})
	require.NoError(t, err)
	assert.Equal(t, MatchNationwide, res.Match)

	res, err = newTestEngine(newMemStore(nationwide), n, false).Route(context.Background(),
		&lentity.Lead{ID: "L10", Zip: "10001", State: "NY", Status: lentity.StatusOpen})
	require.NoError(t, err)
	assert.False(t, res.Routed)
}

func TestRouteRejectsInvalidLead(t *testing.T) {
	_, err := newTestEngine(newMemStore(), nil, false).Route(context.Background(), &lentity.Lead{})
	assert.ErrorIs(t, err, ErrInvalidLead)
}
