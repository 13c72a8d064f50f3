package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router installs a route group on the application.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires every route group of the service.
func InstallRouter(app *fiber.App) {
	setup(app, NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
