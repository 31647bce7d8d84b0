package httpserver

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/gofiber/fiber/v2"
	fiberfs "github.com/gofiber/fiber/v2/middleware/filesystem"
)

// mountStaticUI serves the built front-end from dir when it exists. Unknown
// paths fall back to index.html so client-side routing works.
func mountStaticUI(app *fiber.App, dir string) {
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		slog.Warn("static ui directory unavailable", "dir", dir, "error", err)
		return
	}

	app.Use("/", fiberfs.New(fiberfs.Config{
		Root:         http.FS(os.DirFS(dir)),
		Index:        "index.html",
		NotFoundFile: "index.html",
		Browse:       false,
	}))
}
