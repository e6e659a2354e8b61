package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Routes collects the console handlers and the middleware placed in front
// of them. Nil limiters are skipped.
type Routes struct {
	Jobs        *JobHandler
	Batches     *BatchHandler
	Preferences *PreferenceHandler
	Policy      *PolicyHandler

	Identity    fiber.Handler
	SubmitLimit fiber.Handler
	BatchLimit  fiber.Handler

	// Docs serves the swagger UI when set
	Docs fiber.Handler
}

// Mount registers every console route on app
func (r Routes) Mount(app *fiber.App) {
	// Swagger UI
	if r.Docs != nil {
		app.Get("/swagger/*", r.Docs)
	}

	api := app.Group("/api", r.Identity)

	// Single-job routes
	api.Post("/jobs", orNext(r.SubmitLimit), r.Jobs.Submit)
	api.Get("/jobs/:jobId/status", r.Jobs.Status)
	api.Post("/artifacts/:artifactId/register", r.Jobs.Register)

	// Batch routes
	batches := api.Group("/batches")
	batches.Post("/", orNext(r.BatchLimit), r.Batches.Create)
	batches.Get("/", r.Batches.List)
	batches.Get("/:batchId", r.Batches.Get)
	batches.Delete("/:batchId", r.Batches.Close)
	batches.Post("/:batchId/register", r.Batches.RegisterAll)
	batches.Post("/:batchId/items/:targetId/retry", r.Batches.Retry)
	batches.Post("/:batchId/items/:targetId/register", r.Batches.RegisterItem)

	// Preference routes
	api.Get("/preferences/:targetId", r.Preferences.Get)
	api.Put("/preferences/:targetId", r.Preferences.Put)

	// Policy content routes
	api.Get("/policy/schemas", r.Policy.Schemas)
	api.Post("/policy/normalize", r.Policy.Normalize)
	api.Post("/policy/denormalize", r.Policy.Denormalize)

	// WebSocket routes
	app.Get("/ws/batches/:batchId", r.Identity, r.Batches.Upgrade, websocket.New(r.Batches.Stream))
}

// ErrorHandler renders errors that escaped a handler in the response envelope
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}

func orNext(h fiber.Handler) fiber.Handler {
	if h != nil {
		return h
	}
	return func(c *fiber.Ctx) error { return c.Next() }
}
