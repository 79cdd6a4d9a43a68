package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	appconfig "inkwell/config"
	"inkwell/crypto"
	"inkwell/database"
	"inkwell/server"
	"inkwell/services"
	"inkwell/utils"
)

func main() {
	startTime := time.Now()

	// Load .env if present; real deployments set the environment directly
	_ = godotenv.Load()

	utils.InitLogging()
	config := appconfig.LoadConfig()
	utils.TrustProxyHeaders.Store(config.TrustProxyHeaders)

	db, err := database.SetupDatabase(config.DatabaseURL)
	if err != nil {
		utils.LogError("Database setup failed", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisURL,
		Password: config.RedisPassword,
		DB:       0,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		utils.LogError("Redis connection failed", err)
		os.Exit(1)
	}

	if config.DefaultAdminEnabled {
		if err := seedDefaultAdmin(ctx, db, config); err != nil {
			utils.LogError("Default admin seeding failed", err)
		}
	}

	services.StartCleanupService(ctx, db, config.TrashRetention, config.SweepInterval)

	// Multipart framing overhead on top of the largest allowed file
	bodyLimit := int(config.MaxAttachmentBytes) + 1024*1024
	app := server.CreateFiberApp(startTime, bodyLimit, db, rdb)
	setupRoutes(app, db, rdb, config)

	go func() {
		utils.LogInfo("Server listening", "port", config.Port)
		if err := app.Listen(":" + config.Port); err != nil {
			utils.LogError("Server stopped", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.LogInfo("Shutting down")
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		utils.LogError("Shutdown failed", err)
	}
}

// seedDefaultAdmin creates the bootstrap admin account if no user holds
// that email yet. Idempotent across restarts.
func seedDefaultAdmin(ctx context.Context, db database.Database, config *appconfig.Config) error {
	email := strings.ToLower(strings.TrimSpace(config.DefaultAdminEmail))

	var exists bool
	if err := db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = $1)`, email).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	hash := crypto.HashPassword(config.DefaultAdminPassword, salt)

	if _, err := db.Exec(ctx, `
		INSERT INTO users (name, email, password_hash, role)
		VALUES ('Administrator', $1, $2, 'admin')`, email, hash); err != nil {
		return err
	}
	utils.LogInfo("Default admin account created", "email", email)
	return nil
}
