package internal

import (
	"errors"
	"fmt"

	"helpinghands/api/config"
	"helpinghands/api/internal/service"
	"helpinghands/api/internal/store"
	"helpinghands/api/internal/token"
	"helpinghands/api/pkg/middleware"
	"helpinghands/api/pkg/security"

	"gorm.io/gorm"
)

// Deps is everything a handler may need. It is built once at startup and
// shared by every request.
type Deps struct {
	Config  *config.Config
	DB      *gorm.DB
	Users   *store.CredentialStore
	Tokens  *store.RefreshTokenStore
	Issuer  *token.Issuer
	Auth    *service.AuthService
	Mail    *service.MailQueue
	Janitor *service.TokenJanitor
	AuthMW  *middleware.Auth
}

// NewDeps wires the stores, the issuer and the lifecycle engine on top of
// db. Mail goes through SMTP when mail.host is configured and to the log
// otherwise, which production refuses. The mail queue is returned stopped,
// call StartWorkerPool.
func NewDeps(cfg *config.Config, db *gorm.DB) (*Deps, error) {
	if cfg.MailHost == "" && cfg.IsProduction() {
		return nil, errors.New("refusing to log mail in production, set mail.host")
	}

	hasher, err := security.NewHasher(cfg.HashAlgorithm, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to create password hasher, %w", err)
	}

	users := store.NewCredentialStore(db, hasher, &store.CredentialOpts{
		MaxFailedAttempts: cfg.MaxFailedLogins,
		LockDuration:      cfg.LockDuration,
	})
	tokens := store.NewRefreshTokenStore(db)

	issuer, err := token.NewIssuer(token.Opts{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, tokens, users)
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer, %w", err)
	}

	var mailer service.Mailer = &service.LogMailer{FrontendURL: cfg.FrontendURL}
	if cfg.MailHost != "" {
		mailer, err = service.NewSMTPMailer(service.SMTPConfig{
			Host:     cfg.MailHost,
			Port:     cfg.MailPort,
			Username: cfg.MailUsername,
			Password: cfg.MailPassword,
			From:     cfg.MailFrom,
		}, cfg.FrontendURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create smtp mailer, %w", err)
		}
	}

	mail := service.NewMailQueue(mailer, cfg.MailWorkers, cfg.MailQueue)
	auth := service.NewAuthService(users, tokens, issuer, mail)

	return &Deps{
		Config:  cfg,
		DB:      db,
		Users:   users,
		Tokens:  tokens,
		Issuer:  issuer,
		Auth:    auth,
		Mail:    mail,
		Janitor: service.NewTokenJanitor(tokens, cfg.CleanupInterval),
		AuthMW:  middleware.NewAuth(issuer, auth),
	}, nil
}
