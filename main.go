package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"memory-match-system/handlers"
	"memory-match-system/middleware"
	"memory-match-system/models"
	"memory-match-system/services"
	"memory-match-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Guest-Token, X-Match-Token",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Match{},
		&models.GridSlot{},
		&models.GuestUser{},
		&models.CardPair{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if err := models.SeedCardPairs(db); err != nil {
		log.Fatal("failed to seed card catalog:", err)
	}

	tokenService, err := services.NewTokenServiceFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	matchService := services.NewMatchService(db, tokenService)
	leaderboardService := services.NewLeaderboardService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Guest profile sync is optional — without an identity service URL the
	// snapshot is fed from token claims alone.
	if identityServiceURL := os.Getenv("IDENTITY_SERVICE_URL"); identityServiceURL != "" {
		serviceToken := os.Getenv("GAME_SERVICE_TOKEN")
		syncWorker := workers.NewGuestSyncWorker(db, identityServiceURL, serviceToken)
		syncWorker.Start(ctx)
	} else {
		log.Println("⚠️  IDENTITY_SERVICE_URL not set — guest sync worker disabled")
	}

	matchService.StartSweepScheduler()

	handlers.SetupMatchRoutes(app, matchService, db)
	handlers.SetupLeaderboardRoutes(app, leaderboardService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Abandoned-pair sweeper running (every 30s)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
