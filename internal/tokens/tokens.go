package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Skotchmaster/lookaly/internal/domain"
)

type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// MinSecretBytes matches the output size of the weakest accepted HMAC.
const MinSecretBytes = 32

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Type Type `json:"type"`
	jwt.RegisteredClaims
}

type Issued struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

type Pair struct {
	Access  Issued
	Refresh Issued
}

type Options struct {
	Secret     []byte
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Issuer signs and parses the two token types. It holds no mutable state and
// is safe for concurrent use.
type Issuer struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

func NewIssuer(opts Options) (*Issuer, error) {
	if len(opts.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("%w: signing secret must be at least %d bytes", domain.ErrConfiguration, MinSecretBytes)
	}
	alg := opts.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: signing algorithm %q is not an HMAC variant", domain.ErrConfiguration, alg)
	}
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token lifetimes must be positive", domain.ErrConfiguration)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	i := &Issuer{
		secret:     append([]byte(nil), opts.Secret...),
		method:     method,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		now:        now,
	}
	i.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	)
	return i, nil
}

func (i *Issuer) IssueAccess(subject string) (Issued, error) {
	return i.issue(subject, TypeAccess, i.accessTTL)
}

func (i *Issuer) IssueRefresh(subject string) (Issued, error) {
	return i.issue(subject, TypeRefresh, i.refreshTTL)
}

func (i *Issuer) IssuePair(subject string) (Pair, error) {
	access, err := i.IssueAccess(subject)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.IssueRefresh(subject)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

func (i *Issuer) issue(subject string, typ Type, ttl time.Duration) (Issued, error) {
	now := i.now()
	exp := now.Add(ttl)
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("%w: sign %s token: %v", domain.ErrConfiguration, typ, err)
	}
	return Issued{Token: signed, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Parse checks signature, algorithm and expiry, and requires a subject and a
// jti. Every failure is reported as ErrInvalidToken; the underlying jwt error
// is kept for logging only.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := i.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }
