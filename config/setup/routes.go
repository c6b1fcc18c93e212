package setup

import (
	"time"

	"cloudsave/app"
	"cloudsave/handlers"
	"cloudsave/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(fiberApp *fiber.App, application *app.App) {

	fiberApp.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	// OAuth flow. The GET callbacks are hit by the vendor redirect in a
	// browser and reflect the code into the desktop deep link; the POST
	// callback is the app exchanging the code it received.
	auth := fiberApp.Group("/auth")
	auth.Get("/callback", handlers.Callback(application))
	auth.Get("/connected", handlers.ConnectedProviders(application))
	auth.Get("/:provider/url", handlers.AuthURL(application))
	auth.Get("/:provider/callback", handlers.Callback(application))
	auth.Post("/:provider/callback", handlers.ExchangeCode(application))
	auth.Post("/:provider/refresh", handlers.RefreshToken(application))
	auth.Delete("/:provider", handlers.Disconnect(application))

	// Cloud storage operations require a Bearer token plus the
	// X-Cloud-Provider header.
	cloud := fiberApp.Group("/cloud", middleware.CloudAuth(), limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return string(middleware.GetProvider(c)) + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded",
			})
		},
	}))

	cloud.Post("/sync/game", handlers.SyncGame(application))
	cloud.Get("/sync/status", handlers.SyncStatus(application))
	cloud.Post("/upload", handlers.CloudUpload(application))
	cloud.Get("/download/:fileId", handlers.CloudDownload(application))
	cloud.Get("/files", handlers.CloudFiles(application))
	cloud.Delete("/files/:fileId", handlers.CloudDelete(application))
	cloud.Post("/folder", handlers.CloudCreateFolder(application))

	// Community shared saves. The download routes are registered before
	// the per-game listing so "download" is not swallowed by :gameId.
	shared := fiberApp.Group("/shared-saves")
	shared.Post("/upload", handlers.SharedSaveUpload(application))
	shared.Get("/download/:saveId", handlers.SharedSaveDownload(application))
	shared.Post("/download/:saveId/count", handlers.SharedSaveCountDownload(application))
	shared.Get("/:gameId", handlers.SharedSavesList(application))
	shared.Delete("/:saveId", handlers.SharedSaveDelete(application))

	// Local blob store
	storage := fiberApp.Group("/storage")
	storage.Post("/upload", handlers.StorageUpload(application))
	storage.Post("/upload/multiple", handlers.StorageUploadMultiple(application))
	storage.Get("/download/:fileId", handlers.StorageDownload(application))
	storage.Get("/file/:fileId", handlers.StorageInfo(application))
	storage.Delete("/file/:fileId", handlers.StorageDelete(application))
}
