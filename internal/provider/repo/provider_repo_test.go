package repo

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
	"github.com/ovaphlow/pitchfork/service-directory-go/pkg/utilities"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestProvider(t *testing.T, r *ProviderRepo, mutate func(p *entity.Provider)) *entity.Provider {
	t.Helper()
	id := utilities.NewKSUID()
	p := &entity.Provider{
		ID:          id,
		Name:        "Provider " + id,
		Slug:        "provider-" + id,
		ListingTier: entity.TierBasic,
		Status:      entity.StatusUnverified,
		TrialStatus: entity.TrialNone,
		ZipCodes:    entity.NewZipSet("90017"),
		Coverage:    []entity.Coverage{{State: "CA", City: "Los Angeles"}, {State: "NV"}},
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, r.Create(context.Background(), p))
	return p
}

func TestProviderRepoCreateAndGet(t *testing.T) {
	db := openTestDB(t)
	r := NewProviderRepo(db)
	ctx := context.Background()
	require.NoError(t, r.EnsureTable(ctx))

	p := newTestProvider(t, r, nil)
	got, err := r.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Slug, got.Slug)
	assert.True(t, got.ZipCodes.Contains("90017"))
	assert.Len(t, got.Coverage, 2)

	_, err = r.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProviderRepoClaimTokenSingleUse(t *testing.T) {
	db := openTestDB(t)
	r := NewProviderRepo(db)
	ctx := context.Background()
	require.NoError(t, r.EnsureTable(ctx))

	p := newTestProvider(t, r, nil)
	tok := "tok-" + p.ID
	require.NoError(t, r.SetClaimRequest(ctx, p.ID, "owner@example.com", tok))

	res, err := r.ConsumeClaimToken(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, p.ID, res.ID)

	_, err = r.ConsumeClaimToken(ctx, tok)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := r.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusVerified, got.Status)
	assert.Nil(t, got.ClaimToken)
	assert.NotNil(t, got.ClaimVerifiedAt)

	assert.ErrorIs(t, r.SetClaimRequest(ctx, p.ID, "other@example.com", "tok2"), ErrAlreadyVerified)
}

func TestProviderRepoConcurrentClaimHasOneWinner(t *testing.T) {
	db := openTestDB(t)
	r := NewProviderRepo(db)
	ctx := context.Background()
	require.NoError(t, r.EnsureTable(ctx))

	p := newTestProvider(t, r, nil)
	tok := "race-" + p.ID
	require.NoError(t, r.SetClaimRequest(ctx, p.ID, "owner@example.com", tok))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.ConsumeClaimToken(ctx, tok); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestProviderRepoLoginNonce(t *testing.T) {
	db := openTestDB(t)
	r := NewProviderRepo(db)
	ctx := context.Background()
	require.NoError(t, r.EnsureTable(ctx))

	p := newTestProvider(t, r, func(p *entity.Provider) {
		p.Status = entity.StatusVerified
		email := "login-" + p.ID + "@example.com"
		p.ClaimEmail = &email
	})
	found, err := r.FindByEmail(ctx, *p.ClaimEmail)
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	require.NoError(t, r.SetLoginNonce(ctx, p.ID, "n1"))
	require.NoError(t, r.SetLoginNonce(ctx, p.ID, "n2"))

	_, err = r.ConsumeLoginNonce(ctx, p.ID, "n1")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := r.ConsumeLoginNonce(ctx, p.ID, "n2")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	_, err = r.ConsumeLoginNonce(ctx, p.ID, "n2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProviderRepoCandidates(t *testing.T) {
	db := openTestDB(t)
	r := NewProviderRepo(db)
	ctx := context.Background()
	require.NoError(t, r.EnsureTable(ctx))

	future := time.Now().Add(24 * time.Hour)
	ok := newTestProvider(t, r, func(p *entity.Provider) {
		p.Status = entity.StatusVerified
		p.EligibleForLeads = true
		p.TrialStatus = entity.TrialActive
		p.TrialExpiresAt = &future
	})
	optedOut := newTestProvider(t, r, func(p *entity.Provider) {
		p.Status = entity.StatusVerified
		p.EligibleForLeads = true
		now := time.Now()
		p.OptedOutAt = &now
	})

	cands, err := r.FindCandidateProviders(ctx)
	require.NoError(t, err)
	ids := map[string]*entity.Provider{}
	for _, c := range cands {
		ids[c.ID] = c
	}
	require.Contains(t, ids, ok.ID)
	assert.NotContains(t, ids, optedOut.ID)
	assert.Len(t, ids[ok.ID].Coverage, 2)
}
