package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/dumaterial/materials-api/internal/api/http/handlers"
	"github.com/dumaterial/materials-api/internal/auth"
	"github.com/dumaterial/materials-api/internal/observability"
)

// APIPrefix is the versioned root of every application route.
const APIPrefix = "/app/v1"

// RealmRoutes bundles the handler and guard of one auth realm.
type RealmRoutes struct {
	Auth  *handlers.RealmAuthHandler
	Guard *auth.RealmMiddleware
}

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Admin     RealmRoutes
	User      RealmRoutes
	Materials *handlers.MaterialsHandler
	Purchases *handlers.PurchasesHandler
	Metrics   *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group(APIPrefix)

	registerRealm(api.Group("/admin"), cfg.Admin)
	user := api.Group("/user")
	registerRealm(user, cfg.User)
	if cfg.Purchases != nil {
		user.Get("/purchases", cfg.User.Guard.Handle, cfg.Purchases.List)
	}

	if cfg.Materials == nil {
		return
	}
	materials := api.Group("/du_material")
	materials.Get("/get", cfg.Materials.List)
	materials.Get("/get/:id", cfg.Materials.Get)
	materials.Get("/download/:id", cfg.Materials.Download)

	admin := cfg.Admin.Guard.Handle
	materials.Post("/upload", admin, cfg.Materials.Upload)
	materials.Put("/update/:id", admin, cfg.Materials.Update)
	materials.Delete("/delete/:id", admin, cfg.Materials.Delete)

	if cfg.Purchases != nil {
		materials.Post("/:id/purchase", cfg.User.Guard.Handle, cfg.Purchases.Purchase)
	}
}

func registerRealm(group fiber.Router, realm RealmRoutes) {
	group.Post("/signup", realm.Auth.Signup)
	group.Post("/login", realm.Auth.Login)
	group.Get("/logout", realm.Auth.Logout)
}
