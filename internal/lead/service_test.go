package lead

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/entity"
	leadrepo "github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/repo"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/routing"
)

type memLeads struct {
	mu    sync.Mutex
	leads map[string]*entity.Lead
	order []string
	fail  error
}

func newMemLeads() *memLeads { return &memLeads{leads: map[string]*entity.Lead{}} }

func (m *memLeads) Create(ctx context.Context, l *entity.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	cp := *l
	m.leads[l.ID] = &cp
	m.order = append(m.order, l.ID)
	return nil
}

func (m *memLeads) GetByID(ctx context.Context, id string) (*entity.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, leadrepo.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memLeads) ListByStatus(ctx context.Context, status entity.Status, limit, offset int) ([]entity.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Lead
	for _, id := range m.order {
		if l := m.leads[id]; status == "" || l.Status == status {
			out = append(out, *l)
		}
	}
	return out, nil
}

type fixedLocator struct{}

func (fixedLocator) Lookup(ctx context.Context, zip string) (float64, float64, bool, error) {
	if zip == "90012" {
		return 34.0522, -118.2437, true, nil
	}
	return 0, 0, false, nil
}

type mockRouter struct {
	mock.Mock
}

func (m *mockRouter) Route(ctx context.Context, l *entity.Lead) (routing.Result, error) {
	args := m.Called(ctx, l)
	return args.Get(0).(routing.Result), args.Error(1)
}

func validSubmission() entity.Submission {
	return entity.Submission{FullName: "Jane Doe", Phone: "213-555-0100", City: "Los Angeles", State: "CA", Zip: "90012"}
}

func TestSubmitValidatesBeforeStoring(t *testing.T) {
	store := newMemLeads()
	router := new(mockRouter)
	svc := NewService(store, fixedLocator{}, router, nil, nil)

	_, _, err := svc.Submit(context.Background(), entity.Submission{FullName: "J"})
	var verrs entity.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Empty(t, store.leads)
	router.AssertNotCalled(t, "Route", mock.Anything, mock.Anything)
}

func TestSubmitStoresResolvesAndRoutes(t *testing.T) {
	store := newMemLeads()
	router := new(mockRouter)
	router.On("Route", mock.Anything, mock.MatchedBy(func(l *entity.Lead) bool {
		return l.ID != "" && l.Lat != nil && *l.Lat == 34.0522
	})).Return(routing.Result{Routed: true, ProviderID: "p1", Notified: true}, nil)
	svc := NewService(store, fixedLocator{}, router, nil, nil)

	l, res, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.Equal(t, "p1", res.ProviderID)
	assert.Equal(t, entity.PriceStandardCents, l.PriceCents)
	assert.Contains(t, store.leads, l.ID)
	router.AssertExpectations(t)
}

func TestSubmitStoreFailure(t *testing.T) {
	store := newMemLeads()
	store.fail = errors.New("db down")
	svc := NewService(store, nil, new(mockRouter), nil, nil)
	l, _, err := svc.Submit(context.Background(), validSubmission())
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestRouteOpen(t *testing.T) {
	store := newMemLeads()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Create(context.Background(), &entity.Lead{ID: id, Status: entity.StatusOpen}))
	}
	store.leads["c"].Status = entity.StatusClaimed
	router := new(mockRouter)
	router.On("Route", mock.Anything, mock.MatchedBy(func(l *entity.Lead) bool { return l.ID == "a" })).
		Return(routing.Result{Routed: true, ProviderID: "p1"}, nil)
	router.On("Route", mock.Anything, mock.MatchedBy(func(l *entity.Lead) bool { return l.ID == "b" })).
		Return(routing.Result{}, nil)

	routed, attempted, err := NewService(store, nil, router, nil, nil).RouteOpen(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, routed)
	assert.Equal(t, 2, attempted)
}

func TestRouteByIDNotFound(t *testing.T) {
	_, err := NewService(newMemLeads(), nil, new(mockRouter), nil, nil).RouteByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

type countingAlerter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (a *countingAlerter) LeadUnserved(ctx context.Context, l *entity.Lead) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, l.ID)
	return a.err
}

func TestUnservedAlertOnlyOnSubmission(t *testing.T) {
	store := newMemLeads()
	router := new(mockRouter)
	router.On("Route", mock.Anything, mock.Anything).Return(routing.Result{}, nil)
	alerts := &countingAlerter{}
	svc := NewService(store, fixedLocator{}, router, alerts, nil)

	l, res, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.False(t, res.Routed)
	assert.Equal(t, []string{l.ID}, alerts.calls)

	_, err = svc.RouteByID(context.Background(), l.ID)
	require.NoError(t, err)
	_, _, err = svc.RouteOpen(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, alerts.calls, 1)
}

func TestUnservedAlertSkippedWhenRouted(t *testing.T) {
	router := new(mockRouter)
	router.On("Route", mock.Anything, mock.Anything).Return(routing.Result{Routed: true, ProviderID: "p1"}, nil)
	alerts := &countingAlerter{}

	_, _, err := NewService(newMemLeads(), nil, router, alerts, nil).Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.Empty(t, alerts.calls)
}

func TestUnservedAlertFailureDoesNotFailSubmission(t *testing.T) {
	router := new(mockRouter)
	router.On("Route", mock.Anything, mock.Anything).Return(routing.Result{}, nil)
	alerts := &countingAlerter{err: errors.New("smtp down")}

	l, _, err := NewService(newMemLeads(), nil, router, alerts, nil).Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.NotNil(t, l)
	assert.Len(t, alerts.calls, 1)
}

func TestSubmitHandler(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		result routing.Result
		rerr   error
		status int
		want   string
	}{
		{"routed", `{"full_name":"Jane Doe","phone":"2135550100","city":"Los Angeles","state":"CA","zip":"90012"}`,
			routing.Result{Routed: true, ProviderID: "p1", Notified: true}, nil, http.StatusCreated, `"status":"routed"`},
		{"unserved", `{"full_name":"Jane Doe","phone":"2135550100","city":"New York","state":"NY","zip":"10001"}`,
			routing.Result{}, nil, http.StatusCreated, `"status":"unserved"`},
		{"pending", `{"full_name":"Jane Doe","phone":"2135550100","city":"New York","state":"NY","zip":"10001"}`,
			routing.Result{}, errors.New("db timeout"), http.StatusAccepted, `"status":"pending"`},
		{"invalid", `{"full_name":"J"}`, routing.Result{}, nil, http.StatusBadRequest, `"field":"full_name"`},
		{"malformed", `{`, routing.Result{}, nil, http.StatusBadRequest, `invalid payload`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := new(mockRouter)
			router.On("Route", mock.Anything, mock.Anything).Return(tc.result, tc.rerr)
			h := NewHandler(NewService(newMemLeads(), fixedLocator{}, router, nil, nil), nil)

			rec := httptest.NewRecorder()
			h.Submit(rec, httptest.NewRequest(http.MethodPost, "/leads", strings.NewReader(tc.body)))
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.want)
		})
	}
}

func TestAdminHandlers(t *testing.T) {
	store := newMemLeads()
	require.NoError(t, store.Create(context.Background(), &entity.Lead{ID: "L1", Status: entity.StatusOpen}))
	router := new(mockRouter)
	router.On("Route", mock.Anything, mock.Anything).Return(routing.Result{LeadID: "L1", Routed: true, ProviderID: "p1"}, nil)
	h := NewHandler(NewService(store, nil, router, nil, nil), nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/leads", h.List)
	mux.HandleFunc("POST /admin/leads/{id}/route", h.Route)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/leads?status=open", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"L1"`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/leads?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/leads/L1/route", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"provider_id":"p1"`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/leads/NOPE/route", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
