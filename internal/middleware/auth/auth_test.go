package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/models"
	"github.com/Skotchmaster/lookaly/internal/session"
	"github.com/Skotchmaster/lookaly/internal/tokens"
)

type fakeVerifier struct {
	accounts map[string]*models.Account
	gotType  tokens.Type
}

func (f *fakeVerifier) Verify(_ context.Context, raw string, want tokens.Type) (*session.Session, error) {
	f.gotType = want
	acct, ok := f.accounts[raw]
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	return &session.Session{Account: acct, Token: raw}, nil
}

func newVerifier() *fakeVerifier {
	return &fakeVerifier{accounts: map[string]*models.Account{
		"customer": {ID: "1", Role: domain.RoleCustomer},
		"admin":    {ID: "2", Role: domain.RoleCustomer, IsAdmin: true},
		"sales":    {ID: "3", Role: domain.RoleSales},
	}}
}

func run(t *testing.T, mw echo.MiddlewareFunc, prep func(*http.Request)) (*models.Account, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	prep(req)
	c := e.NewContext(req, httptest.NewRecorder())

	var seen *models.Account
	err := mw(func(c echo.Context) error {
		seen = Account(c)
		require.NotNil(t, Session(c))
		return nil
	})(c)
	return seen, err
}

func header(v string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set(echo.HeaderAuthorization, v) }
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prep    func(*http.Request)
		wantID  string
		wantErr error
	}{
		{name: "bearer header", prep: header("Bearer customer"), wantID: "1"},
		{name: "lower-case scheme", prep: header("bearer admin"), wantID: "2"},
		{name: "cookie", prep: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "sales"}) }, wantID: "3"},
		{name: "header wins over cookie", prep: func(r *http.Request) {
			r.Header.Set(echo.HeaderAuthorization, "Bearer customer")
			r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "sales"})
		}, wantID: "1"},
		{name: "missing", prep: func(*http.Request) {}, wantErr: domain.ErrInvalidCredentials},
		{name: "unknown token", prep: header("Bearer nope"), wantErr: domain.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := newVerifier()
			acct, err := run(t, New(v).RequireAuth, tt.prep)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, acct)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, acct.ID)
			assert.Equal(t, tokens.TypeAccess, v.gotType)
		})
	}
}

func TestRequireAdminAndRole(t *testing.T) {
	t.Parallel()
	m := New(newVerifier())

	_, err := run(t, m.RequireAdmin, header("Bearer customer"))
	assert.ErrorIs(t, err, domain.ErrForbidden)
	acct, err := run(t, m.RequireAdmin, header("Bearer admin"))
	require.NoError(t, err)
	assert.Equal(t, "2", acct.ID)

	salesOnly := m.RequireRole(domain.RoleSales, domain.RoleAnalyst)
	_, err = run(t, salesOnly, header("Bearer admin"))
	assert.ErrorIs(t, err, domain.ErrForbidden, "the admin flag does not grant roles")
	_, err = run(t, salesOnly, header("Bearer sales"))
	assert.NoError(t, err)
}
