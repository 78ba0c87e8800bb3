package federation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/lookaly/internal/db"
	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/hash"
	"github.com/Skotchmaster/lookaly/internal/models"
	"github.com/Skotchmaster/lookaly/internal/repo"
)

type fakeProvider struct {
	srv          *httptest.Server
	tokenStatus  int
	profileCode  int
	profile      map[string]any
	profileDelay time.Duration
	exchanges    atomic.Int32
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{
		tokenStatus: http.StatusOK,
		profileCode: http.StatusOK,
		profile:     map[string]any{"sub": "google-123", "email": "Fed@Example.com", "name": "Fed User", "email_verified": true},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		fp.exchanges.Add(1)
		_ = r.ParseForm()
		if fp.tokenStatus != http.StatusOK || r.PostForm.Get("code") != "good-code" || r.PostForm.Get("client_secret") != "secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"internal provider detail"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"provider-at","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if fp.profileDelay > 0 {
			time.Sleep(fp.profileDelay)
		}
		if r.Header.Get("Authorization") != "Bearer provider-at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if fp.profileCode != http.StatusOK {
			w.WriteHeader(fp.profileCode)
			_, _ = w.Write([]byte("upstream exploded"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fp.profile)
	})
	fp.srv = httptest.NewServer(mux)
	t.Cleanup(fp.srv.Close)
	return fp
}

type fixture struct {
	rec      *Reconciler
	repo     *repo.GormRepo
	hasher   *hash.Hasher
	fp       *fakeProvider
	provider Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	gdb, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, db.Migrate(ctx, gdb))

	h, err := hash.New(bcrypt.MinCost, 2)
	require.NoError(t, err)

	fp := newFakeProvider(t)
	r := &repo.GormRepo{DB: gdb}
	p := Provider{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/api/auth/google/callback",
		AuthURL:      fp.srv.URL + "/auth",
		TokenURL:     fp.srv.URL + "/token",
		UserInfoURL:  fp.srv.URL + "/userinfo",
		Scopes:       []string{"openid", "email", "profile"},
	}
	return &fixture{
		rec:      NewReconciler(p, r, h, fp.srv.Client(), 2*time.Second),
		repo:     r,
		hasher:   h,
		fp:       fp,
		provider: p,
	}
}

func TestAuthorizationURL(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	raw := f.rec.AuthorizationURL("state-xyz")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "/auth", u.Path)
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "select_account", q.Get("prompt"))
	assert.Equal(t, "state-xyz", q.Get("state"))
	assert.Equal(t, "http://localhost/api/auth/google/callback", q.Get("redirect_uri"))
	assert.Zero(t, f.fp.exchanges.Load(), "building the URL makes no request")
}

func TestCompleteLogin_CreatesFederationOnlyAccount(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.rec.CompleteLogin(ctx, "good-code")
	require.NoError(t, err)

	assert.Equal(t, "fed@example.com", acct.Email)
	assert.Equal(t, "Fed User", acct.Name)
	assert.True(t, acct.IsActive)
	assert.Equal(t, domain.RoleCustomer, acct.Role)
	require.NotNil(t, acct.PasswordChangedAt)
	require.NotNil(t, acct.FederatedID)
	assert.Equal(t, "google-123", *acct.FederatedID)
	assert.NotEmpty(t, acct.PasswordHash)
	assert.False(t, f.hasher.Verify(ctx, "", acct.PasswordHash))

	again, err := f.rec.CompleteLogin(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, again.ID, "second login resolves to the same account")
}

func TestCompleteLogin_LinksExistingEmail(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	existing := &models.Account{Email: "fed@example.com", Name: "Local", PasswordHash: "h", IsActive: true}
	require.NoError(t, f.repo.Create(ctx, existing))

	acct, err := f.rec.CompleteLogin(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, acct.ID)

	stored, err := f.repo.FindByID(ctx, existing.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FederatedID)
	assert.Equal(t, "google-123", *stored.FederatedID)
	assert.Equal(t, "h", stored.PasswordHash, "linking keeps the password")
}

func TestCompleteLogin_EmailLinkedToOtherIdentity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	other := "google-999"
	require.NoError(t, f.repo.Create(ctx, &models.Account{Email: "fed@example.com", Name: "Local", IsActive: true, FederatedID: &other}))

	_, err := f.rec.CompleteLogin(ctx, "good-code")
	assert.ErrorIs(t, err, domain.ErrFederation)
}

// signupDuringCreate registers a password account with the same email just
// before the federated account is inserted.
type signupDuringCreate struct {
	*repo.GormRepo
	signup *models.Account
}

func (s *signupDuringCreate) Create(ctx context.Context, acct *models.Account) error {
	if s.signup != nil && acct.FederatedID != nil {
		if err := s.GormRepo.Create(ctx, s.signup); err != nil {
			return err
		}
	}
	return s.GormRepo.Create(ctx, acct)
}

// conflictingStore refuses every insert as a duplicate without storing it.
type conflictingStore struct {
	*repo.GormRepo
}

func (conflictingStore) Create(context.Context, *models.Account) error {
	return domain.ErrConflict
}

func TestCompleteLogin_ConcurrentSignupIsLinked(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	signup := &models.Account{Email: "fed@example.com", Name: "Local", PasswordHash: "h", IsActive: true}
	store := &signupDuringCreate{GormRepo: f.repo, signup: signup}
	rec := NewReconciler(f.provider, store, f.hasher, f.fp.srv.Client(), 2*time.Second)

	acct, err := rec.CompleteLogin(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, signup.ID, acct.ID)

	stored, err := f.repo.FindByID(ctx, signup.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FederatedID)
	assert.Equal(t, "google-123", *stored.FederatedID)
}

func TestCompleteLogin_UnresolvedConflictIsFederationError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := NewReconciler(f.provider, conflictingStore{GormRepo: f.repo}, f.hasher, f.fp.srv.Client(), 2*time.Second)
	_, err := rec.CompleteLogin(context.Background(), "good-code")
	assert.ErrorIs(t, err, domain.ErrFederation)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestCompleteLogin_ProviderFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		code  string
		setup func(fp *fakeProvider)
	}{
		{name: "bad code", code: "bad-code"},
		{name: "empty code", code: "  "},
		{name: "token endpoint error", code: "good-code", setup: func(fp *fakeProvider) { fp.tokenStatus = http.StatusInternalServerError }},
		{name: "profile endpoint error", code: "good-code", setup: func(fp *fakeProvider) { fp.profileCode = http.StatusBadGateway }},
		{name: "profile without sub", code: "good-code", setup: func(fp *fakeProvider) { fp.profile = map[string]any{"email": "x@y.com"} }},
		{name: "profile without email", code: "good-code", setup: func(fp *fakeProvider) { fp.profile = map[string]any{"sub": "s"} }},
		{name: "unverified email", code: "good-code", setup: func(fp *fakeProvider) {
			fp.profile = map[string]any{"sub": "s", "email": "x@y.com", "email_verified": false}
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f.fp)
			}
			_, err := f.rec.CompleteLogin(context.Background(), tt.code)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrFederation)
		})
	}
}

func TestCompleteLogin_Timeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.fp.profileDelay = 300 * time.Millisecond
	f.rec.timeout = 50 * time.Millisecond

	_, err := f.rec.CompleteLogin(context.Background(), "good-code")
	assert.ErrorIs(t, err, domain.ErrFederation)
}

func TestCompleteLogin_Disabled(t *testing.T) {
	t.Parallel()

	rec := NewReconciler(Provider{}, nil, nil, nil, 0)
	assert.False(t, rec.Enabled())
	_, err := rec.CompleteLogin(context.Background(), "code")
	assert.ErrorIs(t, err, domain.ErrFederationDisabled)
}

func TestNewState(t *testing.T) {
	t.Parallel()

	a, err := NewState()
	require.NoError(t, err)
	b, err := NewState()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}
