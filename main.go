package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/TobiasWagner/GameVault/app/repository"
	"github.com/TobiasWagner/GameVault/internal/pkg/cache"
	"github.com/TobiasWagner/GameVault/internal/pkg/database"
	"github.com/TobiasWagner/GameVault/internal/pkg/env"
	"github.com/TobiasWagner/GameVault/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	app := fiber.New(fiber.Config{})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
