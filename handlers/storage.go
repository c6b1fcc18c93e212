package handlers

import (
	"errors"

	"cloudsave/app"
	"cloudsave/blobstore"

	"github.com/gofiber/fiber/v2"
)

// StorageUpload stores a single uploaded file on local disk.
func StorageUpload(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header, err := c.FormFile("file")
		if err != nil {
			return badRequest(c, "File is required")
		}

		f, err := header.Open()
		if err != nil {
			return serverErrorWithDetails(c, "Failed to read uploaded file", err)
		}
		defer f.Close()

		info, err := a.Blobs.Save(header.Filename, header.Header.Get("Content-Type"), f)
		if err != nil {
			return serverErrorWithDetails(c, "Failed to store file", err)
		}
		return created(c, fiber.Map{"file": info})
	}
}

// StorageUploadMultiple stores a batch of uploaded files on local disk.
func StorageUploadMultiple(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return badRequest(c, "Invalid multipart form")
		}

		headers := form.File["files"]
		if len(headers) == 0 {
			return badRequest(c, "At least one file is required")
		}

		infos := make([]*blobstore.ObjectInfo, 0, len(headers))
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				return serverErrorWithDetails(c, "Failed to read uploaded file", err)
			}
			info, err := a.Blobs.Save(header.Filename, header.Header.Get("Content-Type"), f)
			f.Close()
			if err != nil {
				return serverErrorWithDetails(c, "Failed to store file", err)
			}
			infos = append(infos, info)
		}
		return created(c, fiber.Map{"files": infos})
	}
}

// StorageDownload streams a stored file back under its original name.
func StorageDownload(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		r, info, err := a.Blobs.Open(c.Params("fileId"))
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				return notFound(c, "File not found")
			}
			return serverErrorWithDetails(c, "Failed to open file", err)
		}
		c.Set("Content-Type", info.ContentType)
		c.Set("Content-Disposition", `attachment; filename="`+info.OriginalName+`"`)
		return c.SendStream(r)
	}
}

// StorageInfo returns the metadata sidecar of a stored file.
func StorageInfo(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		info, err := a.Blobs.Info(c.Params("fileId"))
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				return notFound(c, "File not found")
			}
			return serverErrorWithDetails(c, "Failed to read file metadata", err)
		}
		return success(c, fiber.Map{"file": info})
	}
}

// StorageDelete removes a stored file and its metadata.
func StorageDelete(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := a.Blobs.Delete(c.Params("fileId")); err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				return notFound(c, "File not found")
			}
			return serverErrorWithDetails(c, "Failed to delete file", err)
		}
		return success(c, fiber.Map{"deleted": true})
	}
}
