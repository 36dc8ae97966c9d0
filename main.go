package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/joho/godotenv"

	"strata-waitlist/handlers"
	"strata-waitlist/services"
	"strata-waitlist/store"
	"strata-waitlist/utils"
	"strata-waitlist/workers"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		log.Fatal("failed to open store: ", err)
	}

	app := fiber.New(fiber.Config{
		AppName: "strata-waitlist",
	})

	allowedOrigins := utils.Getenv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080")
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowMethods: "GET,POST,PATCH,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	// 100 requests per 15 minutes per IP on the public API.
	app.Use("/api", limiter.New(limiter.Config{
		Max:        100,
		Expiration: 15 * time.Minute,
	}))

	mailerlite := services.NewMailerLiteClient()
	syncWorker := workers.NewListSyncWorker(mailerlite, utils.GetenvInt("LIST_SYNC_BUFFER", 256))
	go syncWorker.Start(ctx)

	waitlistService := services.NewWaitlistService(st)
	waitlistService.Notifier = syncWorker
	authService := services.NewAuthService(st)

	waitlistService.StartTierScheduler(ctx)

	handlers.SetupWaitlistRoutes(app, waitlistService)
	handlers.SetupAuthRoutes(app, authService, waitlistService)

	port := utils.Getenv("PORT", "3001")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()

	log.Printf("🚀 Server running on port %s", port)
	log.Printf("📊 API available at http://localhost:%s/api", port)
	log.Printf("✅ CORS configured for origins: %s", allowedOrigins)

	<-ctx.Done()
	log.Println("🛑 Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := st.Close(); err != nil {
		log.Printf("Store close error: %v", err)
	}
}

// openStore picks the backend: the sqlite file store by default, postgres or
// DynamoDB when configured. The handle is constructed here and threaded
// through explicitly; nothing else opens a connection.
func openStore(ctx context.Context) (store.Store, error) {
	backend := utils.Getenv("WAITLIST_BACKEND", "sqlite")
	switch backend {
	case "dynamodb":
		log.Println("✅ Using DynamoDB backend")
		return store.OpenDynamo(ctx)
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			log.Fatal("DATABASE_URL environment variable not set")
		}
		log.Println("✅ Using Postgres backend")
		return store.OpenPostgres(dsn)
	default:
		path := utils.Getenv("SQLITE_PATH", "./waitlist.db")
		log.Printf("✅ Using SQLite backend (%s)", path)
		return store.OpenSQLite(path)
	}
}
