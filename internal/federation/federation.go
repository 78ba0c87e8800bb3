// Package federation signs users in through an external OAuth2 provider and
// maps the provider's subject onto a local account.
package federation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/models"
	"github.com/Skotchmaster/lookaly/internal/repo"
)

const maxProfileBytes = 1 << 20

type Provider struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

func Google(clientID, clientSecret, redirectURL string) Provider {
	return Provider{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
		UserInfoURL:  "https://www.googleapis.com/oauth2/v3/userinfo",
		Scopes:       []string{"openid", "email", "profile"},
	}
}

type Profile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified *bool  `json:"email_verified"`
}

type AccountStore interface {
	FindByFederatedID(ctx context.Context, sub string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, acct *models.Account) error
	LinkFederated(ctx context.Context, id, sub string) error
}

type PasswordHasher interface {
	Unusable(ctx context.Context) (string, error)
}

type Reconciler struct {
	oauth       *oauth2.Config
	userInfoURL string
	client      *http.Client
	timeout     time.Duration
	accounts    AccountStore
	hasher      PasswordHasher
	now         func() time.Time
}

func NewReconciler(p Provider, accounts AccountStore, hasher PasswordHasher, client *http.Client, timeout time.Duration) *Reconciler {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reconciler{
		oauth: &oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
			Scopes:       p.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   p.AuthURL,
				TokenURL:  p.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: p.UserInfoURL,
		client:      client,
		timeout:     timeout,
		accounts:    accounts,
		hasher:      hasher,
		now:         time.Now,
	}
}

func (r *Reconciler) Enabled() bool {
	return r.oauth.ClientID != "" && r.oauth.ClientSecret != ""
}

// NewState returns an opaque value to bind a callback to the browser that
// started the flow.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthorizationURL only builds the URL; it makes no request.
func (r *Reconciler) AuthorizationURL(state string) string {
	return r.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// CompleteLogin trades code for a profile and returns the local account for
// it, creating or linking one when needed. Every provider failure is
// ErrFederation; the detail stays in the wrapped message for logs.
func (r *Reconciler) CompleteLogin(ctx context.Context, code string) (*models.Account, error) {
	if !r.Enabled() {
		return nil, domain.ErrFederationDisabled
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: empty authorization code", domain.ErrFederation)
	}

	profile, err := r.fetchProfile(ctx, code)
	if err != nil {
		return nil, err
	}
	return r.reconcile(ctx, profile)
}

func (r *Reconciler) fetchProfile(ctx context.Context, code string) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)

	tok, err := r.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %v", domain.ErrFederation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build profile request: %v", domain.ErrFederation, err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: profile request: %v", domain.ErrFederation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProfileBytes))
		return nil, fmt.Errorf("%w: profile status %d", domain.ErrFederation, resp.StatusCode)
	}

	var p Profile
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %v", domain.ErrFederation, err)
	}
	p.Email = repo.NormalizeEmail(p.Email)
	if p.Subject == "" || p.Email == "" {
		return nil, fmt.Errorf("%w: profile lacks sub or email", domain.ErrFederation)
	}
	if p.EmailVerified != nil && !*p.EmailVerified {
		return nil, fmt.Errorf("%w: provider email not verified", domain.ErrFederation)
	}
	return &p, nil
}

func (r *Reconciler) reconcile(ctx context.Context, p *Profile) (*models.Account, error) {
	acct, err := r.lookup(ctx, p)
	if !errors.Is(err, domain.ErrNotFound) {
		return acct, err
	}

	acct, err = r.create(ctx, p)
	if !errors.Is(err, domain.ErrConflict) {
		return acct, err
	}

	// Lost a race with a concurrent callback or sign-up for the same email.
	acct, err = r.lookup(ctx, p)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: account creation conflicted", domain.ErrFederation)
	}
	return acct, err
}

// lookup finds the account by provider subject, then by email, linking the
// subject onto an email match. ErrNotFound means neither exists.
func (r *Reconciler) lookup(ctx context.Context, p *Profile) (*models.Account, error) {
	acct, err := r.accounts.FindByFederatedID(ctx, p.Subject)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	acct, err = r.accounts.FindByEmail(ctx, p.Email)
	if err != nil {
		return nil, err
	}
	if err := r.accounts.LinkFederated(ctx, acct.ID, p.Subject); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: account %s is linked to another identity", domain.ErrFederation, acct.ID)
		}
		return nil, err
	}
	sub := p.Subject
	acct.FederatedID = &sub
	return acct, nil
}

func (r *Reconciler) create(ctx context.Context, p *Profile) (*models.Account, error) {
	hash, err := r.hasher.Unusable(ctx)
	if err != nil {
		return nil, fmt.Errorf("placeholder hash: %w", err)
	}
	now := r.now().UTC()
	sub := p.Subject
	acct := &models.Account{
		Email:             p.Email,
		Name:              displayName(p),
		PasswordHash:      hash,
		IsActive:          true,
		Role:              domain.RoleCustomer,
		PasswordChangedAt: &now,
		FederatedID:       &sub,
	}
	if err := r.accounts.Create(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

func displayName(p *Profile) string {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name, _, _ = strings.Cut(p.Email, "@")
	}
	if utf8.RuneCountInString(name) > 100 {
		name = string([]rune(name)[:100])
	}
	return name
}
