package handlers

import (
	"errors"
	"log/slog"

	"cloudsave/provider"
	"cloudsave/services"

	"github.com/gofiber/fiber/v2"
)

func success(c *fiber.Ctx, data fiber.Map) error {
	return c.JSON(data)
}

func created(c *fiber.Ctx, data fiber.Map) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": message})
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": message})
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": message})
}

func serverError(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": message})
}

func serverErrorWithDetails(c *fiber.Ctx, message string, err error) error {
	requestID := ""
	if id, ok := c.Locals("requestID").(string); ok {
		requestID = id
	}

	slog.Error("server error",
		"request_id", requestID,
		"method", c.Method(),
		"path", c.Path(),
		"message", message,
		"error", err,
	)

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": message})
}

// cloudError maps provider and service errors onto HTTP statuses so vendor
// failures never surface as opaque 500s.
func cloudError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, provider.ErrUnsupportedProvider):
		return badRequest(c, err.Error())
	case errors.Is(err, provider.ErrMissingCode):
		return badRequest(c, err.Error())
	case errors.Is(err, services.ErrMissingGameInfo), errors.Is(err, services.ErrNoFiles):
		return badRequest(c, err.Error())
	case errors.Is(err, services.ErrNotAuthenticated), provider.IsAuthFailure(err):
		return unauthorized(c, err.Error())
	case provider.IsNotFound(err):
		return notFound(c, err.Error())
	}

	var authErr *provider.AuthExchangeError
	var refreshErr *provider.TokenRefreshError
	if errors.As(err, &authErr) || errors.As(err, &refreshErr) {
		return unauthorized(c, err.Error())
	}

	var transferErr *provider.TransferError
	if errors.As(err, &transferErr) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": transferErr.Error()})
	}

	return serverErrorWithDetails(c, "Cloud operation failed", err)
}
