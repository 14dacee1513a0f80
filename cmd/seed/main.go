// Command seed provisions the initial accounts: one administrator and one
// regular user. Passwords are read from the terminal without echo so they
// never end up in shell history.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/term"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/users"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func getPassword(prompt string) ([]byte, error) {
	fmt.Printf("%s: ", prompt)
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// ensureAccount creates the account if it does not exist yet. Existing
// accounts are left untouched so re-running the seed is safe.
func ensureAccount(ctx context.Context, repo users.Repository, email, name string, role models.Role, cost int) error {
	_, err := repo.GetByEmail(ctx, email)
	if err == nil {
		fmt.Printf("%s already exists, skipping\n", email)
		return nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return err
	}

	pw, err := getPassword(fmt.Sprintf("Password for %s", email))
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(string(pw), cost)
	if err != nil {
		return err
	}

	created, err := repo.Create(ctx, &models.User{
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		return err
	}

	fmt.Printf("created %s (%s)\n", created.Email, created.Role)
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	repo := rm.Users(db)

	if err := ensureAccount(ctx, repo, "admin@example.com", "Admin", models.RoleAdmin, cfg.BcryptCost); err != nil {
		return err
	}
	if err := ensureAccount(ctx, repo, "user@example.com", "User", models.RoleUser, cfg.BcryptCost); err != nil {
		return err
	}

	return nil
}

func main() {
	cfg := config.LoadConfig()
	if err := run(context.Background(), cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
