package handlers

import (
	"html/template"
	"strings"

	"cloudsave/app"
	"cloudsave/deeplink"
	"cloudsave/models"

	"github.com/gofiber/fiber/v2"
)

// AuthURL returns the vendor authorization URL for a provider. The
// correlation state carried in the URL identifies the provider on the
// way back.
func AuthURL(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authURL, err := a.Auth.AuthURL(c.Params("provider"))
		if err != nil {
			return cloudError(c, err)
		}
		return success(c, fiber.Map{"authUrl": authURL})
	}
}

// ExchangeCode trades an authorization code for tokens and stores the
// resulting credential.
func ExchangeCode(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.CallbackRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		if err := a.Validator.Validate(&req); err != nil {
			return badRequest(c, err.Error())
		}

		cred, err := a.Auth.ExchangeCode(c.Context(), c.Params("provider"), req.Code)
		if err != nil {
			return cloudError(c, err)
		}
		return success(c, fiber.Map{"tokens": credentialResponse(cred)})
	}
}

// RefreshToken exchanges a refresh token for fresh access credentials.
func RefreshToken(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.RefreshRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		if err := a.Validator.Validate(&req); err != nil {
			return badRequest(c, err.Error())
		}

		cred, err := a.Auth.RefreshWithToken(c.Context(), c.Params("provider"), req.RefreshToken)
		if err != nil {
			return cloudError(c, err)
		}
		return success(c, fiber.Map{"tokens": credentialResponse(cred)})
	}
}

// Disconnect drops a provider's stored credential. The client must run
// the authorization flow again to reconnect.
func Disconnect(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := a.Auth.Disconnect(c.Params("provider")); err != nil {
			return cloudError(c, err)
		}
		return success(c, fiber.Map{"disconnected": true})
	}
}

// ConnectedProviders lists the providers that currently hold a credential.
func ConnectedProviders(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		connected := []string{}
		for _, p := range []models.CloudProvider{models.ProviderGoogleDrive, models.ProviderOneDrive, models.ProviderDropbox} {
			if a.Tokens.Get(p) != nil {
				connected = append(connected, string(p))
			}
		}
		return success(c, fiber.Map{"connected": connected})
	}
}

// callbackPage forwards the browser redirect into the desktop app's
// custom URL scheme. Vendors redirect here with code and state in the
// query; the page reflects them into the deep link and asks the user to
// return to the app.
var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Authorization Complete</title>
<style>
body { font-family: sans-serif; text-align: center; padding-top: 4rem; background: #1a1a2e; color: #eee; }
a { color: #7aa2f7; }
</style>
</head>
<body>
<h2>Authorization complete</h2>
<p>Returning you to the app&hellip; If nothing happens, <a href="{{.DeepLink}}">click here</a>.</p>
<p>You can close this window.</p>
<script>window.location.href = {{.DeepLink}};</script>
</body>
</html>
`))

// Callback renders the deep-link reflect page for the browser half of
// the OAuth flow.
func Callback(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		code := c.Query("code")
		state := c.Query("state")
		if code == "" {
			return badRequest(c, "authorization code required")
		}

		// Fall back to the path parameter when the vendor dropped the
		// state round-trip.
		if state == "" {
			state = c.Params("provider")
		}

		var page strings.Builder
		err := callbackPage.Execute(&page, struct{ DeepLink string }{
			DeepLink: deeplink.BuildURL(code, state),
		})
		if err != nil {
			return serverErrorWithDetails(c, "Failed to render callback page", err)
		}

		c.Set("Content-Type", fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(page.String())
	}
}

// credentialResponse is the token payload the desktop client consumes;
// it arrives wrapped under a top-level "tokens" key.
func credentialResponse(cred *models.Credential) fiber.Map {
	resp := fiber.Map{
		"provider":    cred.Provider,
		"accessToken": cred.AccessToken,
		"tokenType":   cred.TokenKind,
	}
	if cred.RefreshToken != "" {
		resp["refreshToken"] = cred.RefreshToken
	}
	if !cred.ExpiresAt.IsZero() {
		resp["expiresAt"] = cred.ExpiresAt.UnixMilli()
	}
	return resp
}
