package handlers

import (
	"io"

	"cloudsave/app"
	"cloudsave/middleware"
	"cloudsave/models"

	"github.com/gofiber/fiber/v2"
)

// maxSaveFileSize caps a single uploaded save file at 100 MB.
const maxSaveFileSize = 100 << 20

// SyncGame uploads a batch of save files for one game into the
// authenticated provider.
func SyncGame(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		prov := middleware.GetProvider(c)
		token := middleware.GetAccessToken(c)

		form, err := c.MultipartForm()
		if err != nil {
			return badRequest(c, "Invalid multipart form")
		}

		gameID := c.FormValue("gameId")
		gameTitle := c.FormValue("gameName")

		var files []models.LocalFile
		for _, header := range form.File["files"] {
			if header.Size > maxSaveFileSize {
				return badRequest(c, "File too large: "+header.Filename)
			}
			f, err := header.Open()
			if err != nil {
				return serverErrorWithDetails(c, "Failed to read uploaded file", err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return serverErrorWithDetails(c, "Failed to read uploaded file", err)
			}
			files = append(files, models.LocalFile{Name: header.Filename, Data: data})
		}

		batch, err := a.Sync.SyncGameSaves(c.Context(), string(prov), token, gameID, gameTitle, files)
		if err != nil {
			return cloudError(c, err)
		}

		return success(c, fiber.Map{
			"gameId":        batch.GameID,
			"gameName":      batch.GameTitle,
			"uploadedFiles": batch.Results,
			"totalSize":     batch.TotalSize,
			"syncDate":      batch.CompletedAt,
		})
	}
}

// SyncStatus reports the orchestrator's current state.
func SyncStatus(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(a.Sync.Status())
	}
}

// CloudUpload writes a single file to the provider at the given remote
// path.
func CloudUpload(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		adapter, err := a.Providers.Get(middleware.GetProvider(c))
		if err != nil {
			return cloudError(c, err)
		}

		header, err := c.FormFile("file")
		if err != nil {
			return badRequest(c, "File is required")
		}
		if header.Size > maxSaveFileSize {
			return badRequest(c, "File too large: "+header.Filename)
		}

		f, err := header.Open()
		if err != nil {
			return serverErrorWithDetails(c, "Failed to read uploaded file", err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return serverErrorWithDetails(c, "Failed to read uploaded file", err)
		}

		remotePath := c.FormValue("path")
		if remotePath == "" {
			remotePath = header.Filename
		}

		obj, err := adapter.Upload(c.Context(), middleware.GetAccessToken(c), data, remotePath)
		if err != nil {
			return cloudError(c, err)
		}
		return created(c, fiber.Map{"file": obj})
	}
}

// CloudDownload streams an object's content back to the client.
func CloudDownload(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		adapter, err := a.Providers.Get(middleware.GetProvider(c))
		if err != nil {
			return cloudError(c, err)
		}

		data, err := adapter.Download(c.Context(), middleware.GetAccessToken(c), c.Params("fileId"))
		if err != nil {
			return cloudError(c, err)
		}

		c.Set("Content-Type", fiber.MIMEOctetStream)
		return c.Send(data)
	}
}

// CloudFiles lists the children of a remote path (the provider root when
// no path is given).
func CloudFiles(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		adapter, err := a.Providers.Get(middleware.GetProvider(c))
		if err != nil {
			return cloudError(c, err)
		}

		objects, err := adapter.List(c.Context(), middleware.GetAccessToken(c), c.Query("path"))
		if err != nil {
			return cloudError(c, err)
		}
		return success(c, fiber.Map{"files": objects})
	}
}

// CloudDelete removes a remote object.
func CloudDelete(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		adapter, err := a.Providers.Get(middleware.GetProvider(c))
		if err != nil {
			return cloudError(c, err)
		}

		if err := adapter.Delete(c.Context(), middleware.GetAccessToken(c), c.Params("fileId")); err != nil {
			return cloudError(c, err)
		}
		return success(c, fiber.Map{"deleted": true})
	}
}

// CloudCreateFolder creates a remote folder under an optional parent.
func CloudCreateFolder(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		adapter, err := a.Providers.Get(middleware.GetProvider(c))
		if err != nil {
			return cloudError(c, err)
		}

		var req models.CreateFolderRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		if err := a.Validator.Validate(&req); err != nil {
			return badRequest(c, err.Error())
		}

		folder, err := adapter.CreateFolder(c.Context(), middleware.GetAccessToken(c), req.Name, req.ParentID)
		if err != nil {
			return cloudError(c, err)
		}
		return created(c, fiber.Map{"folder": folder})
	}
}
