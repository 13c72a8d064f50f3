package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/reinfweb/ReinfWeb/internal/pkg/database"
	"github.com/reinfweb/ReinfWeb/internal/pkg/env"
	"github.com/reinfweb/ReinfWeb/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()

	// The binary may run from the project root or from cmd/reinfweb.
	basePaths := []string{
		"./",
		"../../",
		"../../../",
	}
	openAPIPath := "docs/openapi.yml"
	for _, base := range basePaths {
		if _, err := os.Stat(base + openAPIPath); err == nil {
			openAPIPath = base + openAPIPath
			break
		}
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 104857600, // 100 MiB, signed archives can be large
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: openAPIPath,
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	router.InstallRouter(app)

	return app
}
