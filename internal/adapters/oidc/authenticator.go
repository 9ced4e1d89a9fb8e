// Package oidc authenticates storefront users against an external OpenID
// Connect provider using the resource-owner password grant.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	jmespath "github.com/jmespath-community/go-jmespath"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
	"github.com/target/storefront/internal/ports"
	"golang.org/x/oauth2"
)

const (
	defaultEmailExpr = "email"
	defaultScope     = "openid email profile"

	invalidCredentialsMessage = "Invalid login credentials"
)

// Config holds configuration for the OIDC authenticator.
type Config struct {
	ClientID     string
	ClientSecret string
	DiscoveryURL string
	Scope        string

	// EmailExpr is a JMESPath expression selecting the email from ID token claims.
	EmailExpr string
	// MetadataExprs maps metadata keys to JMESPath expressions over the claims.
	MetadataExprs map[string]string

	HTTPClient *http.Client // defaults to a 30s client
	Logger     *slog.Logger
}

// Authenticator implements ports.Authenticator against an OIDC provider.
type Authenticator struct {
	oauth    *oauth2.Config
	verifier *gooidc.IDTokenVerifier
	client   *http.Client
	email    string
	metadata map[string]string
	logger   *slog.Logger
}

var _ ports.Authenticator = (*Authenticator)(nil)

// New discovers the provider's endpoints and keys and returns an Authenticator.
func New(ctx context.Context, cfg Config) (*Authenticator, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	client := httpClient(cfg)

	issuer := strings.TrimSuffix(cfg.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(gooidc.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	verifier := op.Verifier(&gooidc.Config{ClientID: cfg.ClientID})
	return newAuthenticator(cfg, op.Endpoint(), verifier)
}

func newAuthenticator(cfg Config, endpoint oauth2.Endpoint, verifier *gooidc.IDTokenVerifier) (*Authenticator, error) {
	emailExpr := strings.TrimSpace(cfg.EmailExpr)
	if emailExpr == "" {
		emailExpr = defaultEmailExpr
	}
	if _, err := jmespath.Compile(emailExpr); err != nil {
		return nil, fmt.Errorf("invalid email expression %q: %w", emailExpr, err)
	}
	for key, expr := range cfg.MetadataExprs {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("invalid metadata expression for %q: %w", key, err)
		}
	}
	scope := cfg.Scope
	if strings.TrimSpace(scope) == "" {
		scope = defaultScope
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "oidc_authenticator")
	}

	return &Authenticator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       strings.Fields(scope),
			Endpoint:     endpoint,
		},
		verifier: verifier,
		client:   httpClient(cfg),
		email:    emailExpr,
		metadata: cfg.MetadataExprs,
		logger:   logger,
	}, nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.ClientID == "":
		return errors.New("client ID is required")
	case cfg.ClientSecret == "":
		return errors.New("client secret is required")
	case cfg.DiscoveryURL == "":
		return errors.New("discovery URL is required")
	}
	return nil
}

func isRejectedGrant(re *oauth2.RetrieveError) bool {
	if re.ErrorCode == "invalid_grant" {
		return true
	}
	return re.Response != nil && re.Response.StatusCode == http.StatusUnauthorized
}

func httpClient(cfg Config) *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Authenticate exchanges the credentials for tokens and maps the verified ID token to a User.
// A rejected grant is an InvalidCredentials error.
func (a *Authenticator) Authenticate(ctx context.Context, in ports.Credentials) (domainauth.User, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	tok, err := a.oauth.PasswordCredentialsToken(ctx, strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && isRejectedGrant(re) {
			return domainauth.User{}, apperrors.InvalidCredentials(invalidCredentialsMessage)
		}
		return domainauth.User{}, apperrors.Network(err, "Could not reach the identity provider.")
	}

	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return domainauth.User{}, apperrors.Internal("identity provider returned no id_token")
	}
	idTok, err := a.verifier.Verify(ctx, rawID)
	if err != nil {
		return domainauth.User{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "id_token verification failed")
	}

	var claims map[string]any
	if err = idTok.Claims(&claims); err != nil {
		return domainauth.User{}, fmt.Errorf("decode id_token claims: %w", err)
	}
	user, err := a.mapClaims(idTok.Subject, claims)
	if err != nil {
		return domainauth.User{}, err
	}
	user.CreatedAt = idTok.IssuedAt
	a.logger.InfoContext(ctx, "oidc sign-in", "subject", user.ID)
	return user, nil
}

// Register is not offered by the external provider.
func (a *Authenticator) Register(context.Context, ports.SignUpInput) (domainauth.User, error) {
	return domainauth.User{}, apperrors.Unsupported("Sign-up is managed by your identity provider.")
}

// UpdatePassword is not offered by the external provider.
func (a *Authenticator) UpdatePassword(context.Context, string, string) error {
	return apperrors.Unsupported("Password changes are managed by your identity provider.")
}

func (a *Authenticator) mapClaims(subject string, claims map[string]any) (domainauth.User, error) {
	email, err := searchString(a.email, claims)
	if err != nil {
		return domainauth.User{}, fmt.Errorf("evaluate email expression: %w", err)
	}
	if email == "" {
		return domainauth.User{}, apperrors.Validation("identity provider returned no email")
	}

	var meta map[string]string
	for key, expr := range a.metadata {
		v, searchErr := searchString(expr, claims)
		if searchErr != nil {
			return domainauth.User{}, fmt.Errorf("evaluate metadata %q: %w", key, searchErr)
		}
		if v == "" {
			continue
		}
		if meta == nil {
			meta = make(map[string]string, len(a.metadata))
		}
		meta[key] = v
	}
	return domainauth.User{ID: subject, Email: email, Metadata: meta}, nil
}

// searchString evaluates expr and renders scalar results as strings.
// Lists are joined with commas; null yields "".
func searchString(expr string, data any) (string, error) {
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ","), nil
	default:
		return fmt.Sprint(t), nil
	}
}
