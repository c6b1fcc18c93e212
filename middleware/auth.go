package middleware

import (
	"strings"

	"cloudsave/models"

	"github.com/gofiber/fiber/v2"
)

// CloudAuth requires a Bearer access token and an X-Cloud-Provider header
// naming one of the supported providers. The token and provider are stored
// in request locals for handlers further down the chain.
func CloudAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		providerName := c.Get("X-Cloud-Provider")
		prov, err := models.ParseProvider(providerName)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unsupported cloud provider: " + providerName,
			})
		}

		c.Locals("accessToken", parts[1])
		c.Locals("cloudProvider", prov)

		return c.Next()
	}
}

// GetAccessToken returns the Bearer token stored by CloudAuth.
func GetAccessToken(c *fiber.Ctx) string {
	token, ok := c.Locals("accessToken").(string)
	if !ok {
		return ""
	}
	return token
}

// GetProvider returns the provider stored by CloudAuth.
func GetProvider(c *fiber.Ctx) models.CloudProvider {
	prov, ok := c.Locals("cloudProvider").(models.CloudProvider)
	if !ok {
		return ""
	}
	return prov
}
