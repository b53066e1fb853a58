package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-resto/internal/app"
	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/config"
	"github.com/noah-isme/backend-resto/internal/health"
	"github.com/noah-isme/backend-resto/internal/loyalty"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/payment"
	"github.com/noah-isme/backend-resto/internal/promo"
	"github.com/noah-isme/backend-resto/internal/ratelimit"
	"github.com/noah-isme/backend-resto/internal/reward"
	"github.com/noah-isme/backend-resto/internal/security"
	"github.com/noah-isme/backend-resto/internal/settings"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, "api")
	if err != nil {
		panic(err)
	}
	defer deps.Close()

	cfg := deps.Cfg
	logger := deps.Log
	st := deps.Store

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "resto")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "resto-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	settingsSvc := settings.NewService(st, cfg)
	catalogSvc := catalog.NewService(st, catalog.NewCache(deps.Redis, envDurationMillis("CATALOG_CACHE_TTL_MS", 300_000)))

	ledger := &loyalty.Ledger{Runner: st, Log: logger}
	earning := &loyalty.Earning{
		Runner:          st,
		PointsPerUnit:   cfg.PointsPerCurrencyUnit,
		FirstOrderBonus: int64(cfg.FirstOrderBonus),
		BirthdayBonus:   int64(cfg.BirthdayBonus),
		ReferralPoints:  int64(cfg.ReferralBonus),
		Log:             logger,
	}
	cards := &loyalty.Cards{
		Runner:        st,
		Cooldown:      cfg.ScanCooldown,
		VisitPoints:   int64(cfg.PhysicalVisitPoints),
		PointsPerUnit: cfg.PointsPerCurrencyUnit,
	}
	thresholds := loyalty.Thresholds{
		Silver:   int64(cfg.SilverTierPoints),
		Gold:     int64(cfg.GoldTierPoints),
		Platinum: int64(cfg.PlatinumTierPoints),
	}

	rewardSvc := &reward.Service{Runner: st, Expiry: cfg.RewardExpiry}
	promoSvc := &promo.Service{Q: st}

	orderSvc := &order.Service{
		Runner:        st,
		Catalog:       catalogSvc,
		Settings:      settingsSvc,
		Earning:       earning,
		PointsPerUnit: cfg.PointsPerCurrencyUnit,
		Log:           logger,
	}

	paystack := payment.NewPaystack(cfg.PaystackSecretKey, cfg.PaystackBaseURL, cfg.GatewayTimeout)
	paymentSvc := &payment.Service{
		Provider:    paystack,
		Orders:      orderSvc,
		CallbackURL: cfg.PaystackCallbackURL,
		Log:         logger,
	}
	webhook := payment.Webhook{
		Provider:  paystack,
		Orders:    orderSvc,
		Replay:    deps.Redis,
		ReplayTTL: cfg.WebhookReplayTTL,
		Log:       logger,
	}

	catalogHandler := &catalog.Handler{Service: catalogSvc}
	settingsHandler := &settings.Handler{Service: settingsSvc, Validate: deps.Validate}
	orderHandler := &order.Handler{Service: orderSvc, Validate: deps.Validate}
	orderAdmin := &order.AdminHandler{Service: orderSvc}
	promoHandler := &promo.Handler{Service: promoSvc, Validate: deps.Validate}
	loyaltyHandler := &loyalty.Handler{
		Ledger:     ledger,
		Cards:      cards,
		Earning:    earning,
		Thresholds: thresholds,
		Validate:   deps.Validate,
	}
	rewardHandler := &reward.Handler{Service: rewardSvc, Validate: deps.Validate}
	paymentHandler := &payment.Handler{Svc: paymentSvc}

	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	scanLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: deps.Redis, Prefix: "rl:scan:"},
		Config: ratelimit.Config{
			Key:    scanLimitKey,
			Window: cfg.ScanRateWindow,
			Max:    cfg.ScanRateLimit,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("scan rate limiter") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-User-ID", "X-User-Role"},
		ExposedHeaders:   []string{"Link", "X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(common.Identity)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: st.Pool, redis: deps.Redis},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/restaurant", settingsHandler.Info)
		v.Get("/restaurant/status", settingsHandler.Status)
		v.With(common.RequireStaff).Patch("/restaurant", settingsHandler.Update)

		v.Get("/menu/categories", catalogHandler.Categories)
		v.Get("/menu/items", catalogHandler.Items)
		v.Get("/menu/items/{id}", catalogHandler.ItemDetail)

		v.Route("/orders", func(o chi.Router) {
			o.With(idem.Middleware).Post("/", orderHandler.Create)
			o.Post("/calculate", orderHandler.Calculate)
			o.Post("/delivery-fee", orderHandler.DeliveryFee)
			o.Get("/track/{orderNumber}", orderHandler.Track)
			o.Group(func(mine chi.Router) {
				mine.Use(common.RequireUser)
				mine.Get("/", orderHandler.List)
			})
			o.Get("/{orderID}", orderHandler.Get)
			o.Post("/{orderID}/cancel", orderHandler.Cancel)
		})

		v.Route("/admin/orders", func(admin chi.Router) {
			admin.Use(common.RequireStaff)
			admin.Get("/", orderAdmin.List)
			admin.Patch("/{orderID}/status", orderAdmin.PatchStatus)
		})

		v.Route("/promo", func(p chi.Router) {
			p.Post("/validate", promoHandler.ValidateCode)
			p.Get("/active", promoHandler.Active)
			p.With(common.RequireUser).Get("/usage", promoHandler.UsageHistory)
		})

		v.Route("/loyalty", func(l chi.Router) {
			l.Use(common.RequireUser)
			l.Get("/summary", loyaltyHandler.Summary)
			l.Get("/transactions", loyaltyHandler.Transactions)
			l.With(scanLimit.Middleware).Post("/cards/scan", loyaltyHandler.Scan)
			l.Post("/cards/link", loyaltyHandler.LinkCard)
			l.Delete("/cards/link", loyaltyHandler.UnlinkCard)
			l.Post("/referral", loyaltyHandler.ClaimReferral)
		})

		v.Route("/rewards", func(rw chi.Router) {
			rw.Get("/", rewardHandler.Catalog)
			rw.With(common.RequireUser).Post("/redeem", rewardHandler.Redeem)
			rw.With(common.RequireUser).Get("/mine", rewardHandler.Mine)
		})

		v.Route("/payments", func(p chi.Router) {
			p.With(idem.Middleware).Post("/initialize", paymentHandler.Initialize)
			p.Get("/verify/{reference}", paymentHandler.Verify)
			p.Get("/callback", paymentHandler.Callback)
		})

		v.Post("/webhooks/paystack", webhook.Handle)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown http server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

// scanLimitKey throttles card scans per caller, falling back to the client IP
// for requests that somehow reach the limiter unauthenticated.
func scanLimitKey(r *http.Request) string {
	if id, ok := common.UserID(r.Context()); ok {
		return id
	}
	return r.RemoteAddr
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int64) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return time.Duration(fallback) * time.Millisecond
}
