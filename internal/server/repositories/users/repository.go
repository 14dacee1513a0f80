package users

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Repository is the user-lookup collaborator of the auth core plus the CRUD
// surface of the user module. Missing rows are reported as
// common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, role *models.Role) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	SetDocument(ctx context.Context, id string, documentKey string) error
}
