package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"lmsadmin/internal/aiclient"
	"lmsadmin/internal/auth"
	"lmsadmin/internal/config"
	"lmsadmin/internal/domain"
	"lmsadmin/internal/graph"
	"lmsadmin/internal/handler"
	"lmsadmin/internal/preview"
	"lmsadmin/internal/repository"
	"lmsadmin/internal/scheduler"
	"lmsadmin/internal/service"
	"lmsadmin/internal/storage"
	"lmsadmin/internal/syncer"
)

func connectWithRetry(cfg *config.DatabaseConfig, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	// Сначала подключаемся к базе postgres (системная база, которая всегда существует)
	dsn := cfg.GetDSN()
	pgDSN := strings.Replace(dsn, "dbname="+cfg.Name, "dbname=postgres", 1)
	pgDB, err := sqlx.Connect("postgres", pgDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %v", err)
	}
	defer pgDB.Close()

	// Проверяем, существует ли база данных
	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %v", err)
	}

	// Если базы нет, создаем её
	if !exists {
		log.Printf("Database %s does not exist, creating...", cfg.Name)
		_, err = pgDB.Exec("CREATE DATABASE " + cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %v", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", databaseURL)
		if err == nil {
			break
		}
		log.Printf("Failed to create migrate instance (attempt %d/5): %v", i+1, err)
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Printf("Found dirty database state at version %d, attempting to force version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func main() {
	// Загружаем конфигурации
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := connectWithRetry(&appConfig.Database, 5, time.Second*5)
	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := runMigrations(appConfig); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Инициализация хранилища
	storageConfig, err := storage.NewConfig(".storage.env")
	if err != nil {
		log.Fatalf("Failed to load storage config: %v", err)
	}

	store, err := storage.New(storageConfig)
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}

	verifier := auth.NewVerifier(appConfig.Auth.JWTSecret)

	// Инициализация репозиториев
	limitRepo := repository.NewStorageLimitRepository(db)
	usageRepo := repository.NewUsageRecordRepository(db)
	warningRepo := repository.NewQuotaWarningRepository(db)
	tokenLimitRepo := repository.NewTokenLimitRepository(db)
	tokenUsageRepo := repository.NewTokenUsageRepository(db)
	integrationRepo := repository.NewIntegrationRepository(db)
	lmsRepo := repository.NewLMSRepository(db)
	jobRepo := repository.NewSyncJobRepository(db)
	reviewRepo := repository.NewManualReviewRepository(db)
	recordingRepo := repository.NewRecordingRepository(db)

	// Клиент Microsoft Graph: обновленные токены сохраняются на интеграции
	graphClient := graph.NewClient(graph.Options{TokenStore: integrationRepo})

	// Движок синхронизации и монитор изменений
	engine := syncer.NewEngine(graphClient, lmsRepo, reviewRepo)
	monitor := syncer.NewMonitor(graphClient, engine, integrationRepo)

	// Инициализация сервисов
	quotaService := service.NewQuotaService(lmsRepo, limitRepo, usageRepo, warningRepo)
	tokenQuotaService := service.NewTokenQuotaService(lmsRepo, tokenLimitRepo, tokenUsageRepo, warningRepo)
	cleanupService := service.NewCleanupService(usageRepo, store)
	recordingService := service.NewRecordingService(integrationRepo, graphClient, recordingRepo, store, quotaService)
	aiService := service.NewAIService(aiclient.NewClient(aiclient.Options{
		APIKey: appConfig.AI.APIKey,
		Model:  appConfig.AI.Model,
	}), tokenQuotaService)
	previewService := preview.NewService(store)

	// Планировщик фоновых задач
	runners := map[string]scheduler.Runner{
		domain.JobKindSync:            service.NewSyncRunner(integrationRepo, monitor),
		domain.JobKindRecordingIngest: service.NewRecordingIngestRunner(recordingService),
		domain.JobKindStorageCleanup:  service.NewCleanupRunner(cleanupService),
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	var queueWorker *scheduler.QueueWorker
	if appConfig.Worker.Enabled {
		queueWorker = scheduler.NewQueueWorker(jobRepo, runners)
		queueWorker.Start(workerCtx)
	}
	dispatcher := scheduler.NewDispatcher(jobRepo, runners, queueWorker)

	integrationService := service.NewIntegrationService(integrationRepo, graphClient, dispatcher, jobRepo, reviewRepo)

	// Инициализация хендлеров
	quotaHandler := handler.NewQuotaHandler(quotaService, verifier)
	tokenQuotaHandler := handler.NewTokenQuotaHandler(tokenQuotaService, verifier)
	integrationHandler := handler.NewIntegrationHandler(integrationService, verifier)
	recordingHandler := handler.NewRecordingHandler(recordingService, dispatcher, verifier)
	aiHandler := handler.NewAIHandler(aiService, verifier)
	previewHandler := preview.NewHandler(previewService, recordingService)

	// Настройка HTTP роутера
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		r.Route("/quota", func(r chi.Router) {
			r.Get("/", quotaHandler.GetQuotaInfo)
			r.Post("/check", quotaHandler.CheckQuota)
			r.Post("/usage", quotaHandler.RegisterUsage)
			r.Post("/release", quotaHandler.ReleaseUsage)
			r.Put("/limit", quotaHandler.UpdateLimit)
			r.Get("/usage", quotaHandler.ListUsage)
			r.Get("/warnings", quotaHandler.ListWarnings)
		})

		r.Route("/tokens", func(r chi.Router) {
			r.Get("/", tokenQuotaHandler.GetQuotaInfo)
			r.Put("/limit", tokenQuotaHandler.UpdateLimit)
		})

		r.Post("/ai/complete", aiHandler.Complete)

		r.Route("/integrations", func(r chi.Router) {
			r.Get("/", integrationHandler.List)
			r.Post("/", integrationHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", integrationHandler.Get)
				r.Put("/", integrationHandler.Update)
				r.Post("/test", integrationHandler.TestConnection)
				r.Post("/sync", integrationHandler.TriggerSync)
				r.Get("/reviews", integrationHandler.ListReviews)

				r.Route("/recordings", func(r chi.Router) {
					r.Get("/", recordingHandler.List)
					r.Post("/", recordingHandler.Ingest)
					r.Get("/{remoteID}", recordingHandler.Download)
					r.Get("/{remoteID}/preview", previewHandler.GetPreview)
				})
			})
		})

		r.Get("/jobs/{jobID}", integrationHandler.JobStatus)
		r.Post("/reviews/{reviewID}/resolve", integrationHandler.ResolveReview)
	})

	// Создаем HTTP сервер
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Запускаем HTTP сервер
	go func() {
		log.Printf("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Периодическая сверка хранилища с журналом использования
	cleanupTicker := time.NewTicker(time.Duration(appConfig.Worker.CleanupIntervalHours) * time.Hour)
	go func() {
		for {
			select {
			case <-cleanupTicker.C:
				if _, err := cleanupService.Run(context.Background()); err != nil {
					log.Printf("Error during storage cleanup: %v", err)
				}
			case <-workerCtx.Done():
				cleanupTicker.Stop()
				return
			}
		}
	}()

	// Ожидаем сигнал завершения
	<-quit
	log.Println("Shutting down servers...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}

	stopWorker()

	if err := db.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	}

	log.Println("Server exited properly")
}
