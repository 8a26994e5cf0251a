package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/user"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	bearerPrefix = "Bearer "
)

var (
	nowFunc = time.Now // mockable

	errWrongTokenType = errors.New("wrong token type")
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	Username string    `json:"username,omitempty"`
	Role     user.Role `json:"role,omitempty"`
	Type     string    `json:"typ"`
}

func (c *Claims) Identity() *Identity {
	return &Identity{UserID: c.Subject, Username: c.Username, Role: c.Role}
}

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenIssuer issues & verifies HS256 signed access/refresh tokens.
type TokenIssuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenIssuer(conf *core.Config) *TokenIssuer {
	return &TokenIssuer{
		key:        []byte(conf.SecretKey),
		issuer:     conf.AppName,
		accessTTL:  conf.Server.JWTExpirationDelta,
		refreshTTL: conf.Server.JWTRefreshExpirationDelta,
	}
}

func (ti *TokenIssuer) sign(id Identity, typ string, ttl time.Duration) (string, error) {
	now := nowFunc()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: id.Username,
		Role:     id.Role,
		Type:     typ,
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// Issue issues a new (access, refresh) token pair for the identity.
func (ti *TokenIssuer) Issue(id Identity) (TokenPair, error) {
	access, err := ti.sign(id, TokenTypeAccess, ti.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := ti.sign(id, TokenTypeRefresh, ti.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Parse verifies the token signature, expiry & type then returns its claims.
// Any failure wraps core.ErrUnauthorized.
func (ti *TokenIssuer) Parse(token, typ string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(
		token, claims,
		func(t *jwt.Token) (interface{}, error) { return ti.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(nowFunc),
	)
	if err != nil {
		return nil, errors.Wrap(core.ErrUnauthorized, err.Error())
	}
	if claims.Type != typ {
		return nil, errors.Wrap(core.ErrUnauthorized, errWrongTokenType.Error())
	}
	return claims, nil
}

// BearerResolver resolves identities from `Authorization: Bearer <access token>` headers.
type BearerResolver struct {
	tokens *TokenIssuer
}

var _ IdentityResolver = (*BearerResolver)(nil)

func NewBearerResolver(tokens *TokenIssuer) *BearerResolver {
	return &BearerResolver{tokens: tokens}
}

func (br *BearerResolver) Resolve(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return nil, nil
	}
	claims, err := br.tokens.Parse(strings.TrimSpace(header[len(bearerPrefix):]), TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	return claims.Identity(), nil
}
