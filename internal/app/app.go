package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/openloop/accounts/internal/config"
	"github.com/openloop/accounts/internal/db"
	"github.com/openloop/accounts/internal/repository"
	"github.com/openloop/accounts/internal/service"
	"github.com/openloop/accounts/internal/validation"
)

type App struct {
	Cfg          *config.Config
	DB           *sqlx.DB
	AuthService  *service.AuthService
	EmailService *service.EmailService
	Registry     *validation.Registry
}

func New(cfg *config.Config) (*App, error) {
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	// Repositories
	userRepository := repository.NewUserRepository(database)
	sessionRepository := repository.NewSessionRepository(database)
	lookupRepository := repository.NewLookupRepository(database)

	// Services
	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	socialVerifier := service.NewSocialTokenVerifier()
	authService := service.NewAuthService(
		userRepository,
		sessionRepository,
		emailService,
		socialVerifier,
		cfg.JWTSecret,
		cfg.JWTExpiry,
		cfg.RefreshExpiry,
	)

	registry := validation.NewRegistry(lookupRepository)

	return &App{
		Cfg:          cfg,
		DB:           database,
		AuthService:  authService,
		EmailService: emailService,
		Registry:     registry,
	}, nil
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
