package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"bloggers-platform/backend/internal/audit"
	auditrepo "bloggers-platform/backend/internal/audit/repository"
	"bloggers-platform/backend/internal/config"
	credentialrepo "bloggers-platform/backend/internal/credential/repository"
	"bloggers-platform/backend/internal/db"
	"bloggers-platform/backend/internal/db/migrate"
	"bloggers-platform/backend/internal/devcodes"
	devicerepo "bloggers-platform/backend/internal/device/repository"
	devicesvc "bloggers-platform/backend/internal/device/service"
	healthhandler "bloggers-platform/backend/internal/health/handler"
	identitysvc "bloggers-platform/backend/internal/identity/service"
	"bloggers-platform/backend/internal/mail"
	policyengine "bloggers-platform/backend/internal/policy/engine"
	"bloggers-platform/backend/internal/ratelimit"
	"bloggers-platform/backend/internal/security"
	"bloggers-platform/backend/internal/server/middleware"
	"bloggers-platform/backend/internal/telemetry"
	userrepo "bloggers-platform/backend/internal/user/repository"
)

const (
	redisKeyPrefix       = "ds"
	rateLimitRedisPrefix = "rl"
)

// stores are the persistence backends selected by SESSION_STORE.
type stores struct {
	users    identitysvc.UserStore
	creds    identitysvc.CredentialStore
	sessions devicesvc.SessionRepo
	audit    auditrepo.Repository
	tx       db.Transactor
	redis    *redis.Client
	checks   []healthhandler.Check
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.SessionStore == config.SessionStoreMemory {
		log.Warn().Msg("server: SESSION_STORE=memory, all state is lost on restart")
		users := userrepo.NewMemoryRepository()
		return &stores{
			users:    users,
			creds:    credentialrepo.NewMemoryRepository(users),
			sessions: devicerepo.NewMemoryRepository(),
			audit:    auditrepo.NewMemoryRepository(),
			tx:       db.NopTransactor{},
		}, nil
	}

	if cfg.AutoMigrate {
		if err := migrate.Run(cfg.DatabaseURL, migrate.Up, 0); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	s := &stores{
		users:   userrepo.NewPostgresRepository(pool),
		creds:   credentialrepo.NewPostgresRepository(pool),
		audit:   auditrepo.NewPostgresRepository(pool),
		tx:      db.NewTransactor(pool),
		checks:  []healthhandler.Check{healthhandler.PingCheck("postgres", pool)},
		closers: []func(){pool.Close},
	}

	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			s.close()
			return nil, err
		}
		s.redis = client
		s.sessions = devicerepo.NewRedisRepository(client, redisKeyPrefix)
		s.checks = append(s.checks, healthhandler.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
		s.closers = append(s.closers, func() { _ = client.Close() })
	default:
		s.sessions = devicerepo.NewPostgresRepository(pool)
	}
	return s, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

// rateLimiter shares counters through redis when sessions live there, otherwise counts per process.
// RATE_LIMIT_MAX=0 disables throttling.
func rateLimiter(cfg *config.Config, st *stores) ratelimit.Limiter {
	if cfg.RateLimitMax == 0 {
		log.Warn().Msg("server: RATE_LIMIT_MAX=0, auth routes are not throttled")
		return nil
	}
	limit := ratelimit.Limit{Window: cfg.RateWindow(), Max: cfg.RateLimitMax}
	if st.redis != nil {
		return ratelimit.NewRedisLimiter(st.redis, rateLimitRedisPrefix, limit)
	}
	return ratelimit.NewMemoryLimiter(limit)
}

// tokenProvider loads the configured key pair. With no keys configured outside production an
// ephemeral P-256 key is generated, so tokens do not survive a restart.
func tokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey == "" && cfg.JWTPublicKey == "" {
		if cfg.Env == "production" {
			return nil, errors.New("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set in production")
		}
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		log.Warn().Msg("server: no JWT keys configured, using an ephemeral ES256 key")
		return security.NewTokenProvider(key, &key.PublicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	}
	signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
}

// mailer builds the dispatch chain: optional dev-code capture, then async delivery over HTTP or to the log.
func mailer(cfg *config.Config) (mail.Dispatcher, *devcodes.MemoryStore) {
	var base mail.Dispatcher = mail.LogDispatcher{}
	if cfg.EmailAPIURL != "" {
		base = mail.NewHTTPDispatcher(cfg.EmailAPIKey, cfg.EmailAPIURL, cfg.EmailFrom, mail.Templates{LinkBaseURL: cfg.EmailLinkURL})
	}
	var d mail.Dispatcher = mail.NewAsync(base)
	if !cfg.DevCodesEnabled {
		return d, nil
	}
	retention := max(cfg.ConfirmationTTL(), cfg.RecoveryTTL())
	store := devcodes.NewMemoryStore(retention)
	log.Warn().Msg("server: DEV_CODES_ENABLED, issued codes are readable at GET /dev/codes")
	return mail.NewCaptureDispatcher(store, d), store
}

func policyEvaluator(ctx context.Context, cfg *config.Config) (*policyengine.OPAEvaluator, error) {
	policy := policyengine.DefaultRegoPolicy
	if cfg.PolicyFile != "" {
		p, err := policyengine.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	return policyengine.NewOPAEvaluator(ctx, policy)
}

// services holds the assembled domain flows.
type services struct {
	registration *identitysvc.Registration
	recovery     *identitysvc.Recovery
	auth         *identitysvc.Authenticator
	sessions     *devicesvc.SessionManager
}

func newServices(cfg *config.Config, st *stores, tokens *security.TokenProvider, dispatcher mail.Dispatcher, policy policyengine.Evaluator, events telemetry.EventEmitter) services {
	auditLogger := audit.NewLogger(st.audit, middleware.ClientIP)
	hasher := security.NewHasher(cfg.BcryptCost)
	codes := security.NewCodeIssuer()
	return services{
		registration: identitysvc.NewRegistration(st.users, st.creds, codes, hasher, dispatcher, st.tx, cfg.ConfirmationTTL(),
			identitysvc.WithAuditLogger(auditLogger)),
		recovery: identitysvc.NewRecovery(st.users, st.creds, codes, hasher, dispatcher, st.tx, cfg.RecoveryTTL(),
			identitysvc.WithAuditLogger(auditLogger)),
		auth: identitysvc.NewAuthenticator(st.users, hasher, identitysvc.WithAuditLogger(auditLogger)),
		sessions: devicesvc.NewSessionManager(st.sessions, tokens,
			devicesvc.WithPolicy(policy),
			devicesvc.WithAuditLogger(auditLogger),
			devicesvc.WithEventEmitter(events),
			devicesvc.WithStrictRotation(cfg.SessionStrictRotation),
		),
	}
}
