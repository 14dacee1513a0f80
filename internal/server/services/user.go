package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// documentURLTTL bounds the signed URL handed back right after an upload.
const documentURLTTL = 10 * time.Minute

// maxDocumentSize limits direct document uploads.
const maxDocumentSize = 5_000_000

var allowedDocumentTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
}

// UserPatch is a partial update; nil fields are left unchanged.
type UserPatch struct {
	Email    *string
	Name     *string
	Tel      *string
	Password *string
	Role     *models.Role
}

// UserService implements account management: registration, lookup, updates,
// deletion, and the private-document lifecycle.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	authService *AuthService
	cloud       *CloudService
	config      *config.Config
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, as *AuthService, cs *CloudService, cfg *config.Config) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		authService: as,
		cloud:       cs,
		config:      cfg,
	}
}

// Register creates a new account with role "user" and immediately issues a
// session token, so registration doubles as the first login.
func (s *UserService) Register(ctx context.Context, email, password, name, tel string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return nil, common.ErrorInternal
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.Create(ctx, &models.User{
		Email:        email,
		Name:         name,
		Tel:          tel,
		Role:         models.RoleUser,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	token, err := s.authService.IssueSession(user)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user.PasswordHash = ""
	return &LoginResult{AccessToken: token, User: user}, nil
}

// List returns all accounts, optionally filtered by role. Hashes are
// stripped before the slice leaves the service.
func (s *UserService) List(ctx context.Context, role *models.Role) ([]*models.User, error) {
	if role != nil && !role.Valid() {
		return nil, common.ErrValidation
	}

	repo := s.repomanager.Users(s.db)
	result, err := repo.List(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	for _, u := range result {
		u.PasswordHash = ""
	}
	return result, nil
}

// Get returns a single account by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

// Update applies a partial update and returns the account together with a
// freshly issued token for the updated identity. Re-issuing on every update
// mirrors the registration flow; see IssueSession.
// The read and write run in one transaction so concurrent updates cannot
// interleave between them.
func (s *UserService) Update(ctx context.Context, id string, patch *UserPatch) (*LoginResult, error) {
	var user *models.User

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		u, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if err := s.applyPatch(u, patch); err != nil {
			return err
		}

		if err := repo.Update(ctx, u); err != nil {
			return err
		}

		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, err := s.authService.IssueSession(user)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user.PasswordHash = ""
	return &LoginResult{AccessToken: token, User: user}, nil
}

func (s *UserService) applyPatch(user *models.User, patch *UserPatch) error {
	if patch.Email != nil {
		email := NormalizeEmail(*patch.Email)
		if err := validateEmail(email); err != nil {
			return err
		}
		user.Email = email
	}
	if patch.Name != nil {
		user.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Tel != nil {
		user.Tel = strings.TrimSpace(*patch.Tel)
	}
	if patch.Password != nil {
		if err := validatePassword(*patch.Password); err != nil {
			return err
		}
		hash, err := auth.HashPassword(*patch.Password, s.config.BcryptCost)
		if err != nil {
			return common.ErrorInternal
		}
		user.PasswordHash = hash
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return common.ErrValidation
		}
		user.Role = *patch.Role
	}
	return nil
}

// Delete removes an account. An attached document is deleted from object
// storage first so no orphaned private objects remain.
func (s *UserService) Delete(ctx context.Context, id string) error {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if user.DocumentKey != "" {
		if err := s.cloud.Delete(ctx, user.DocumentKey); err != nil {
			return err
		}
	}

	return repo.Delete(ctx, id)
}

// AttachDocument uploads a private document for the account and records its
// key. The previous document, if any, is removed. Returns a short-lived
// signed URL for immediate preview.
func (s *UserService) AttachDocument(ctx context.Context, id, filename string, body []byte, contentType string) (*SignedAccess, error) {
	if len(body) == 0 || len(body) > maxDocumentSize {
		return nil, common.ErrValidation
	}
	if _, ok := allowedDocumentTypes[contentType]; !ok {
		return nil, common.ErrValidation
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	key := s.documentKey(id, filename)
	if err := s.cloud.Upload(ctx, key, body, contentType); err != nil {
		return nil, err
	}

	if user.DocumentKey != "" && user.DocumentKey != key {
		if err := s.cloud.Delete(ctx, user.DocumentKey); err != nil {
			return nil, err
		}
	}

	if err := repo.SetDocument(ctx, id, key); err != nil {
		return nil, err
	}

	return s.cloud.PresignedGetURL(ctx, key, documentURLTTL)
}

// RemoveDocument deletes the account's document from storage and clears the
// stored key.
func (s *UserService) RemoveDocument(ctx context.Context, id string) error {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.DocumentKey == "" {
		return fmt.Errorf("%w: no document to remove", common.ErrValidation)
	}

	if err := s.cloud.Delete(ctx, user.DocumentKey); err != nil {
		return err
	}

	return repo.SetDocument(ctx, id, "")
}

// DocumentURL issues a time-boxed download URL for the account's document.
func (s *UserService) DocumentURL(ctx context.Context, id string, ttl time.Duration) (*SignedAccess, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.DocumentKey == "" {
		return nil, common.ErrorNotFound
	}

	return s.cloud.PresignedGetURL(ctx, user.DocumentKey, ttl)
}

// documentKey builds a fresh in-scope storage key for a user's document.
// The random segment keeps re-uploads from colliding with cached URLs of the
// previous object.
func (s *UserService) documentKey(userID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("%s/%s/%s%s", s.config.DocumentPrefix, userID, uuid.New(), ext)
}

func validateEmail(email string) error {
	if email == "" {
		return common.ErrValidation
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return common.ErrValidation
	}
	return nil
}

// validatePassword enforces the registration policy: 8..32 characters with
// at least one uppercase letter, one digit, and one special character.
func validatePassword(password string) error {
	if len(password) < 8 || len(password) > 32 {
		return common.ErrValidation
	}
	var upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune("!@#$%^&*", r):
			special = true
		}
	}
	if !upper || !digit || !special {
		return common.ErrValidation
	}
	return nil
}
