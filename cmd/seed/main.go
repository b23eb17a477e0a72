// seed inserts confirmed development accounts for local testing. Run via go run ./cmd/seed.
// Idempotent: skips accounts whose email already exists.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"bloggers-platform/backend/internal/config"
	"bloggers-platform/backend/internal/db"
	"bloggers-platform/backend/internal/logging"
	"bloggers-platform/backend/internal/security"
	userdomain "bloggers-platform/backend/internal/user/domain"
	userrepo "bloggers-platform/backend/internal/user/repository"
)

const devPassword = "password123"

var devUsers = []struct{ email, login string }{
	{"dev@example.com", "dev"},
	{"member@example.com", "member"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	_ = logging.Setup(cfg.LogLevel, "console")
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)
	hash, err := security.NewHasher(cfg.BcryptCost).Hash(devPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("hash password")
	}

	now := time.Now().UTC()
	for _, du := range devUsers {
		existing, err := users.GetByEmail(ctx, du.email)
		if err != nil {
			log.Fatal().Err(err).Str("email", du.email).Msg("seed check")
		}
		if existing != nil {
			log.Info().Str("email", du.email).Msg("already seeded, skipping")
			continue
		}
		if err := users.Create(ctx, &userdomain.User{
			ID:               uuid.NewString(),
			Email:            du.email,
			Login:            du.login,
			PasswordHash:     hash,
			IsEmailConfirmed: true,
			CreatedAt:        now,
		}); err != nil {
			log.Fatal().Err(err).Str("email", du.email).Msg("create user")
		}
		fmt.Printf("Dev login: %s (or %s) / %s\n", du.email, du.login, devPassword)
	}
	log.Info().Msg("seed completed")
}
