// CRM Sync Service - Bitrix24 bidirectional sync
// ================================================
// Serves the inbound webhook pipeline (component I) and the internal
// site-request ingest endpoint the broker consumer calls.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"github.com/kilang-desa-murni/crm/internal/crmsync/bitrix"
	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/internal/crmsync/ingest"
	"github.com/kilang-desa-murni/crm/internal/crmsync/lock"
	"github.com/kilang-desa-murni/crm/internal/crmsync/reconcile"
	"github.com/kilang-desa-murni/crm/internal/crmsync/repository"
	"github.com/kilang-desa-murni/crm/internal/crmsync/siterequest"
	"github.com/kilang-desa-murni/crm/internal/crmsync/token"
	"github.com/kilang-desa-murni/crm/internal/crmsync/webhook"
	"github.com/kilang-desa-murni/crm/pkg/config"
	"github.com/kilang-desa-murni/crm/pkg/database"
	"github.com/kilang-desa-murni/crm/pkg/logger"
	appmiddleware "github.com/kilang-desa-murni/crm/pkg/middleware"
	"github.com/kilang-desa-murni/crm/pkg/response"
	"github.com/kilang-desa-murni/crm/pkg/tracer"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	cfg.App.Name = "crmsync"

	log := logger.New(logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Caller: cfg.Logger.Caller,
	})
	log = log.With().Service(cfg.App.Name).Logger()
	logger.SetGlobal(log)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("Starting crmsync service")

	tr, err := tracer.New(&cfg.Tracer, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracer")
	}
	defer tr.Close(context.Background())

	db, err := database.NewPostgres(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer db.Close()
	sqlxDB := sqlx.NewDb(db.DB, "postgres")

	redisClient, err := database.NewRedis(&cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	masterKey, err := decodeEncryptionKey(cfg.Bitrix.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to decode BITRIX encryption key")
	}
	cipher, err := token.NewCipher(masterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token cipher")
	}
	if err := cipher.SelfTest(); err != nil {
		log.Fatal().Err(err).Msg("Token cipher self-test failed, refusing to start")
	}
	tokenStore := token.NewStore(redisClient, cipher, log)

	client := bitrix.NewClient(bitrix.ClientConfig{
		PortalURL:     cfg.Bitrix.PortalURL,
		ClientID:      cfg.Bitrix.ClientID,
		ClientSecret:  cfg.Bitrix.ClientSecret,
		RedirectURI:   cfg.Bitrix.RedirectURI,
		ServiceUserID: cfg.Bitrix.ServiceUserID,
		MaxRetries:    cfg.Bitrix.MaxRetries,
		CallTimeout:   cfg.Bitrix.CallTimeout,
		RatePerSecond: cfg.Bitrix.RatePerSecond,
	}, tokenStore, tr, log)

	for kind, c := range webhook.EntityConfigs {
		c.MaxAge = cfg.Bitrix.MaxEventAge
		webhook.EntityConfigs[kind] = c
	}
	verifier := webhook.NewVerifier(cfg.Bitrix.WebhookTokens)
	locks := lock.New(redisClient, log)

	leadAdapter := bitrix.NewLeadAdapter(client)
	companyAdapter := bitrix.NewCompanyAdapter(client)
	contactAdapter := bitrix.NewContactAdapter(client)
	userAdapter := bitrix.NewUserAdapter(client)
	dealAdapter := bitrix.NewDealAdapter(client)
	productAdapter := bitrix.NewProductAdapter(client)
	departmentAdapter := bitrix.NewDepartmentAdapter(client)
	timelineAdapter := bitrix.NewTimelineAdapter(client)

	leadRepo := repository.NewLeadRepository(sqlxDB, nil)
	companyRepo := repository.NewCompanyRepository(sqlxDB, nil)
	contactRepo := repository.NewContactRepository(sqlxDB, nil)
	userRepo := repository.NewUserRepository(sqlxDB, nil)

	leadPipeline := ingest.NewPipeline(ingest.LeadSource(leadAdapter, leadRepo), log)
	companyPipeline := ingest.NewPipeline(ingest.CompanySource(companyAdapter, companyRepo), log)
	contactPipeline := ingest.NewPipeline(ingest.ContactSource(contactAdapter, contactRepo), log)
	userPipeline := ingest.NewPipeline(ingest.UserSource(userAdapter, userRepo), log)

	dealImporters := map[domain.Kind]repository.Importer{
		domain.KindCompany: companyPipeline,
		domain.KindContact: contactPipeline,
		domain.KindUser:    userPipeline,
	}
	dealRepo := repository.NewDealRepository(sqlxDB, dealImporters)

	stages, err := bitrix.FetchStageTable(context.Background(), client)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch deal stage table from portal")
	}
	engine := reconcile.NewEngine(stages)

	commentRepo := repository.NewTimelineCommentRepository(sqlxDB)
	timelineSyncer := ingest.NewTimelineSyncer(sqlxDB, timelineAdapter, commentRepo, log)

	departmentRepo := repository.NewDepartmentRepository(sqlxDB)
	departmentSync := ingest.NewDepartmentSync(sqlxDB, departmentAdapter, departmentRepo, log)
	if err := departmentSync.Run(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Initial department import failed, continuing")
	}

	webhookHandler := webhook.NewHandler(
		sqlxDB, verifier, locks, log,
		dealAdapter, dealRepo, engine, timelineSyncer,
		leadPipeline, companyPipeline, contactPipeline,
		leadRepo, companyRepo, contactRepo,
	)

	siterequestHandler := siterequest.NewHandler(client, dealAdapter, contactAdapter, companyAdapter, productAdapter, timelineAdapter, cfg.Bitrix.Managers, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	startTime := time.Now()
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		checks := make(map[string]response.HealthCheck)
		if err := db.Health(req.Context()); err != nil {
			checks["postgresql"] = response.HealthCheck{Status: "unhealthy", Message: err.Error()}
		} else {
			checks["postgresql"] = response.HealthCheck{Status: "healthy"}
		}
		if err := redisClient.Health(req.Context()); err != nil {
			checks["redis"] = response.HealthCheck{Status: "unhealthy", Message: err.Error()}
		} else {
			checks["redis"] = response.HealthCheck{Status: "healthy"}
		}
		status := "healthy"
		for _, check := range checks {
			if check.Status != "healthy" {
				status = "unhealthy"
				break
			}
		}
		response.Health(w, status, Version, time.Since(startTime), checks)
	})

	webhookLimiter := appmiddleware.NewRedisRateLimiter(redisClient, appmiddleware.RateLimitConfig{
		Requests: 60,
		Window:   time.Minute,
		KeyFunc:  appmiddleware.DefaultKeyFunc,
	})
	r.With(
		appmiddleware.RateLimit(webhookLimiter, appmiddleware.RateLimitConfig{Requests: 60, Window: time.Minute}),
		appmiddleware.ContentType("application/x-www-form-urlencoded"),
		appmiddleware.Timeout(10*time.Second),
	).Post("/webhook/bitrix24", webhookHandler.ServeHTTP)

	r.Get("/internal/siterequest", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		result := siterequestHandler.Handle(req.Context(), siterequest.Request{
			Phone:       q.Get("phone"),
			ProductID:   q.Get("product_id"),
			ProductName: q.Get("product_name"),
			Name:        q.Get("name"),
			Comment:     q.Get("comment"),
			MessageID:   q.Get("message_id"),
		})
		if !result.DealCreated {
			response.InternalError(w, "site request could not create a deal")
			return
		}
		response.OK(w, result)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server stopped")
}

func decodeEncryptionKey(raw string) ([]byte, error) {
	if key, err := base64.StdEncoding.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	return nil, fmt.Errorf("encryption key must be 32 raw bytes or their base64 encoding")
}
