// Package services contains server-side business logic. This file implements
// AuthService, which verifies credentials against stored password hashes and
// issues access tokens for verified principals.
package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

// LoginResult bundles the issued access token with the verified account.
// The password hash is stripped before it leaves the service.
type LoginResult struct {
	AccessToken string
	User        *models.User
}

// AuthService provides authentication-related operations:
// - Login: verify credentials and mint a token
// - IssueSession: build claims for an already-verified account
type AuthService struct {
	db                    *sql.DB
	repomanager           repomanager.RepositoryManager
	jwtSecret             []byte
	tokenValidityDuration time.Duration
	// decoyHash burns the bcrypt work factor on unknown identifiers so the
	// not-found path is not distinguishable from a wrong password by timing.
	decoyHash string
}

// NewAuthService constructs an AuthService using repositories and server config.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *AuthService {
	return &AuthService{
		db:                    db,
		repomanager:           m,
		jwtSecret:             []byte(cfg.SecretKey),
		tokenValidityDuration: cfg.TokenValidityDuration,
		decoyHash:             auth.MustDecoyHash(cfg.BcryptCost),
	}
}

// NormalizeEmail canonicalizes an identifier for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies the provided email and password and, on success, returns a
// new access token plus the account. Unknown email and wrong password are
// reported identically as common.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// Same amount of work as the found-but-wrong-password path.
			_, _ = auth.VerifyPassword(password, s.decoyHash)
			return nil, common.ErrInvalidCredentials
		}
		return nil, common.ErrorInternal
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if !ok {
		return nil, common.ErrInvalidCredentials
	}

	token, err := s.IssueSession(user)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user.PasswordHash = ""
	return &LoginResult{AccessToken: token, User: user}, nil
}

// IssueSession mints an access token for an already-verified account.
func (s *AuthService) IssueSession(user *models.User) (string, error) {
	return auth.GenerateToken(user, s.jwtSecret, s.tokenValidityDuration)
}
