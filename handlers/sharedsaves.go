package handlers

import (
	"errors"

	"cloudsave/app"
	"cloudsave/sharedsaves"

	"github.com/gofiber/fiber/v2"
)

// SharedSavesList returns a game's community saves, newest first.
func SharedSavesList(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		saves := a.Shared.ListByGame(c.Params("gameId"))
		return success(c, fiber.Map{"saves": saves})
	}
}

// SharedSaveUpload stores a community save archive with its metadata.
func SharedSaveUpload(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header, err := c.FormFile("file")
		if err != nil {
			return badRequest(c, "File is required")
		}
		if header.Size > maxSaveFileSize {
			return badRequest(c, "File exceeds the 100MB limit")
		}

		meta := sharedsaves.Upload{
			GameID:      c.FormValue("gameId"),
			GameTitle:   c.FormValue("gameTitle"),
			FileName:    header.Filename,
			Description: c.FormValue("description"),
			UploadedBy:  c.FormValue("uploadedBy"),
			Platform:    c.FormValue("platform"),
		}
		if meta.GameID == "" || meta.GameTitle == "" {
			return badRequest(c, "gameId and gameTitle are required")
		}

		f, err := header.Open()
		if err != nil {
			return serverErrorWithDetails(c, "Failed to read uploaded file", err)
		}
		defer f.Close()

		save, err := a.Shared.Save(meta, f)
		if err != nil {
			return serverErrorWithDetails(c, "Failed to store shared save", err)
		}
		return created(c, fiber.Map{"save": save})
	}
}

// SharedSaveDownload streams a community save archive as a zip.
func SharedSaveDownload(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		r, save, err := a.Shared.Open(c.Params("saveId"))
		if err != nil {
			if errors.Is(err, sharedsaves.ErrNotFound) {
				return notFound(c, "Shared save not found")
			}
			return serverErrorWithDetails(c, "Failed to open shared save", err)
		}
		c.Set("Content-Type", "application/zip")
		c.Set("Content-Disposition", `attachment; filename="`+save.FileName+`.zip"`)
		return c.SendStream(r)
	}
}

// SharedSaveCountDownload bumps a save's download counter.
func SharedSaveCountDownload(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := a.Shared.CountDownload(c.Params("saveId")); err != nil {
			if errors.Is(err, sharedsaves.ErrNotFound) {
				return notFound(c, "Shared save not found")
			}
			return serverErrorWithDetails(c, "Failed to update download count", err)
		}
		return success(c, fiber.Map{"success": true})
	}
}

// SharedSaveDelete removes a community save and its metadata.
func SharedSaveDelete(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := a.Shared.Delete(c.Params("saveId")); err != nil {
			if errors.Is(err, sharedsaves.ErrNotFound) {
				return notFound(c, "Shared save not found")
			}
			return serverErrorWithDetails(c, "Failed to delete shared save", err)
		}
		return success(c, fiber.Map{"success": true})
	}
}
