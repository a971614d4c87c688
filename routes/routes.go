package routes

import (
	"log"
	"os"
	"time"

	controller "mailsequence/controllers"
	"mailsequence/sequencer"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
)

// ProgressInterval is how often the progress socket pushes a snapshot
var ProgressInterval = 2 * time.Second

func SetupSequenceRoutes(app *fiber.App, engine *sequencer.Engine) {
	sequenceController := controller.NewSequenceController(engine, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))

	sequence := app.Group("/api/sequence", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	sequence.Post("/start-process", sequenceController.StartProcess)
	sequence.Get("/", sequenceController.GetAllSequences)
	sequence.Get("/:id", sequenceController.GetSequenceByID)
	sequence.Post("/:id/schedule", sequenceController.ScheduleSequence)
	sequence.Get("/:id/jobs", sequenceController.GetSequenceJobs)

	// WebSocket route for job progress
	sequence.Use("/:id/progress", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	sequence.Get("/:id/progress", websocket.New(func(c *websocket.Conn) {
		sequenceController.HandleProgressWS(c, ProgressInterval)
	}))

	log.Println("Sequence routes initialized successfully")
}

func SetupRoutes(app *fiber.App, engine *sequencer.Engine) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupSequenceRoutes(app, engine)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "The requested resource was not found",
		})
	})
}
