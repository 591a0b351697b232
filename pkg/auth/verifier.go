package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/errors"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
)

//go:generate mockgen -destination=mocks/mock_verifier.go -package=mocks -source=verifier.go Verifier

// Verifier validates a bearer credential and returns a normalized principal.
// Implementations are pure with respect to session state.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// Config contains configuration for the token verifier.
type Config struct {
	// Issuer is the federated-identity issuer URL. Empty disables the
	// federated path.
	Issuer string

	// Audience is the expected audience for federated tokens.
	Audience string

	// Secret is the shared secret for the locally-signed HS256 path.
	// Empty disables the locally-signed path unless JWKSURL is set.
	Secret string

	// JWKSURL is the key set URL for the locally-signed RS256 path.
	JWKSURL string

	// EnableDevTokens accepts well-formed but unverified tokens carrying
	// sub and email as development principals. Must be disabled in
	// production.
	EnableDevTokens bool
}

// TokenVerifier attempts, in order: the federated-identity path, the
// locally-signed path, and (when enabled) the development-token path.
type TokenVerifier struct {
	cfg Config

	federated *oidc.IDTokenVerifier
	jwks      *jwk.Cache
}

var _ Verifier = (*TokenVerifier)(nil)

// NewTokenVerifier creates a TokenVerifier. The federated path is wired only
// when cfg.Issuer is set; issuer discovery happens at construction time.
func NewTokenVerifier(ctx context.Context, cfg Config) (*TokenVerifier, error) {
	v := &TokenVerifier{cfg: cfg}

	if cfg.Issuer != "" {
		provider, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to discover identity provider %s: %w", cfg.Issuer, err)
		}
		oc := &oidc.Config{ClientID: cfg.Audience}
		if cfg.Audience == "" {
			oc = &oidc.Config{SkipClientIDCheck: true}
		}
		v.federated = provider.Verifier(oc)
	}

	if cfg.JWKSURL != "" {
		cache := jwk.NewCache(ctx)
		if err := cache.Register(cfg.JWKSURL); err != nil {
			return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
		}
		v.jwks = cache
	}

	return v, nil
}

// Verify validates a bearer credential. Surrounding whitespace is trimmed
// before inspection.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.NewInvalidTokenError("no token provided", nil)
	}

	if v.federated != nil {
		p, err := v.verifyFederated(ctx, token)
		if err == nil {
			return p, nil
		}
		logger.Debugw("federated token verification failed", "error", err)
	}

	if v.cfg.Secret != "" || v.jwks != nil {
		p, err := v.verifyLocal(ctx, token)
		if err == nil {
			return p, nil
		}
		logger.Debugw("local token verification failed", "error", err)
	}

	if v.cfg.EnableDevTokens {
		p, err := v.verifyDev(token)
		if err == nil {
			return p, nil
		}
		logger.Debugw("dev token verification failed", "error", err)
	}

	return nil, errors.NewInvalidTokenError("token rejected by all verification paths", nil)
}

// federatedClaims is the subset of identity-assertion claims we consume.
type federatedClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (v *TokenVerifier) verifyFederated(ctx context.Context, token string) (*Principal, error) {
	idToken, err := v.federated.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to verify identity assertion: %w", err)
	}

	var claims federatedClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode identity claims: %w", err)
	}

	name := claims.Name
	if name == "" {
		name = displayNameFromEmail(claims.Email)
	}

	return &Principal{
		UserID:      idToken.Subject,
		Email:       claims.Email,
		DisplayName: name,
		Role:        RoleUser,
		Avatar:      claims.Picture,
		Origin:      OriginVerified,
	}, nil
}

func (v *TokenVerifier) verifyLocal(ctx context.Context, token string) (*Principal, error) {
	parsed, err := jwt.Parse(token,
		func(t *jwt.Token) (any, error) { return v.signingKey(ctx, t) },
		jwt.WithValidMethods([]string{"HS256", "RS256"}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token is invalid")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("failed to get claims from token")
	}
	return principalFromClaims(claims, OriginAutoCreated)
}

// signingKey resolves the verification key for a locally-signed token: the
// shared secret for HS256, or a JWKS lookup by kid for RS256.
func (v *TokenVerifier) signingKey(ctx context.Context, token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.cfg.Secret == "" {
			return nil, fmt.Errorf("no secret configured for %v", token.Header["alg"])
		}
		return []byte(v.cfg.Secret), nil
	case *jwt.SigningMethodRSA:
		if v.jwks == nil {
			return nil, fmt.Errorf("no JWKS configured for %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("token header missing kid")
		}
		keySet, err := v.jwks.Get(ctx, v.cfg.JWKSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to get JWKS: %w", err)
		}
		key, found := keySet.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("key ID %s not found in JWKS", kid)
		}
		var rawKey any
		if err := key.Raw(&rawKey); err != nil {
			return nil, fmt.Errorf("failed to get raw key: %w", err)
		}
		return rawKey, nil
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

// verifyDev accepts a well-formed three-segment compact assertion whose
// payload contains both sub and email, without verifying its signature.
func (v *TokenVerifier) verifyDev(token string) (*Principal, error) {
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("not a three-segment compact assertion")
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("failed to get claims from token")
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" || email == "" {
		return nil, fmt.Errorf("payload missing sub or email")
	}

	p, err := principalFromClaims(claims, OriginAutoCreated)
	if err != nil {
		return nil, err
	}
	logger.Warnw("accepted development token", "user_id", p.UserID)
	return p, nil
}

func principalFromClaims(claims jwt.MapClaims, origin Origin) (*Principal, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if name == "" {
		name = displayNameFromEmail(email)
	}
	if name == "" {
		name = sub
	}
	role := RoleUser
	if r, _ := claims["role"].(string); r == string(RoleAdmin) {
		role = RoleAdmin
	}
	avatar, _ := claims["avatar"].(string)

	return &Principal{
		UserID:      sub,
		Email:       email,
		DisplayName: name,
		Role:        role,
		Avatar:      avatar,
		Origin:      origin,
	}, nil
}
