package v1

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"log/slog"
	"text/template"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

//go:embed sdk.js
var sdkSource string

var sdkTemplate = template.Must(template.New("sdk.js").Parse(sdkSource))

// GetSDKAction serves the tracking script bound to this server's base URL.
func GetSDKAction(ctx *cartridge.Context) error {
	var buf bytes.Buffer
	if err := sdkTemplate.Execute(&buf, map[string]string{"BaseURL": ctx.BaseURL()}); err != nil {
		ctx.Logger.Error("Failed to render SDK template", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	content := buf.Bytes()
	etag := generateETag(content)
	if ctx.Get(fiber.HeaderIfNoneMatch) == etag {
		return ctx.Status(fiber.StatusNotModified).Send(nil)
	}

	ctx.Set(fiber.HeaderContentType, "application/javascript")
	ctx.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	ctx.Set(fiber.HeaderETag, etag)
	ctx.Set("Cross-Origin-Resource-Policy", "cross-origin")
	return ctx.Send(content)
}

// generateETag returns a strong ETag for content.
func generateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}
