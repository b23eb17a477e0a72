// Server runs the auth HTTP API and a gRPC listener carrying only the standard health service.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"bloggers-platform/backend/internal/config"
	devcodeshandler "bloggers-platform/backend/internal/devcodes/handler"
	devicehandler "bloggers-platform/backend/internal/device/handler"
	healthhandler "bloggers-platform/backend/internal/health/handler"
	identityhandler "bloggers-platform/backend/internal/identity/handler"
	"bloggers-platform/backend/internal/logging"
	"bloggers-platform/backend/internal/server"
	"bloggers-platform/backend/internal/server/httpapi"
	"bloggers-platform/backend/internal/server/middleware"
	"bloggers-platform/backend/internal/telemetry"
	telemetryotel "bloggers-platform/backend/internal/telemetry/otel"
	"bloggers-platform/backend/internal/telemetry/producer"
)

const (
	serviceName    = "bloggers-auth"
	healthInterval = 10 * time.Second
	shutdownGrace  = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("logging")
	}
	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
	log.Info().Msg("server stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: serviceName,
		Environment: cfg.Env,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	telemetry.RegisterMetrics(reg)

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	tokens, err := tokenProvider(cfg)
	if err != nil {
		return err
	}
	policy, err := policyEvaluator(ctx, cfg)
	if err != nil {
		return err
	}

	events := telemetry.Fanout{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.SessionEventsTopic); kp != nil {
		events = append(events, kp)
		defer func() { _ = kp.Close() }()
		log.Info().Strs("brokers", cfg.KafkaBrokersList()).Str("topic", cfg.SessionEventsTopic).Msg("server: session events enabled")
	}

	dispatcher, codes := mailer(cfg)
	svc := newServices(cfg, st, tokens, dispatcher, policy, events)
	cookies := httpapi.Cookies{Secure: cfg.CookieSecure}

	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxiesList())
	if err != nil {
		return err
	}

	routes := []server.Routes{
		identityhandler.NewHandler(svc.registration, svc.recovery, svc.auth, svc.sessions, tokens, cookies,
			identityhandler.WithRateLimiter(rateLimiter(cfg, st))),
		devicehandler.NewHandler(svc.sessions, cookies),
	}
	if codes != nil {
		routes = append(routes, devcodeshandler.NewHandler(codes))
	}
	checker := healthhandler.NewChecker(append(st.checks, healthhandler.PolicyCheck(policy))...)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewHTTPHandler(server.HTTPDeps{Routes: routes, Health: checker, Gatherer: reg, TrustedProxies: trusted}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	grpcSrv, hs := server.NewGRPCServer()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go checker.Watch(ctx, hs, healthInterval)
		go func() {
			log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC health listening")
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	hs.Shutdown()
	grpcSrv.GracefulStop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// let in-flight async emits finish before the providers flush
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	return nil
}
