package main

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	config "github.com/clipperhq/clippost/configs"
	"github.com/clipperhq/clippost/internal/api/handlers"
	"github.com/clipperhq/clippost/internal/api/middleware"
	job "github.com/clipperhq/clippost/internal/jobs"
	"github.com/clipperhq/clippost/internal/platform"
	"github.com/clipperhq/clippost/internal/publisher"
	"github.com/clipperhq/clippost/internal/queue"
	"github.com/clipperhq/clippost/internal/repository"
	"github.com/clipperhq/clippost/internal/storage"
	"github.com/clipperhq/clippost/internal/upload"
	"github.com/clipperhq/clippost/internal/vault"
	"github.com/clipperhq/clippost/pkg/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	if err := utils.ValidateKeySize([]byte(cfg.SecretKey)); err != nil {
		log.Fatalf("SECRET_KEY: %v", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	postRepo := repository.NewPostRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	publishHistoryRepo := repository.NewPublishHistoryRepository(db)

	httpClient := &http.Client{Timeout: 10 * time.Minute}
	uploader := upload.NewUploader(httpClient)
	store := storage.NewService(cfg.Storage)
	tokenVault := vault.New(cfg, accountRepo, httpClient)

	registry := platform.NewRegistry()
	registry.Register("instagram", platform.NewInstagramAdapter(httpClient))
	registry.Register("youtube", platform.NewYoutubeAdapter(httpClient, uploader, store))
	registry.Register("tiktok", platform.NewTiktokAdapter(httpClient, uploader, store))
	registry.Register("linkedin", platform.NewLinkedinAdapter(httpClient, uploader, store))

	pub := publisher.New(postRepo, accountRepo, mediaAssetRepo, publishHistoryRepo, tokenVault, registry)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	publish := handlers.NewPublishHandler(postRepo, publishHistoryRepo, client)
	api.Post("/posts/publish", publish.PublishPost)
	api.Get("/posts/:id/history", publish.GetPublishHistory)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(accountRepo, tokenVault)

	// queue
	queueW := queue.NewQueue(pub)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishPostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
