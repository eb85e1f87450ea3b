package web

import (
	"embed"
	"io/fs"
)

//go:embed all:static
var staticFiles embed.FS

// EmbeddedStaticFS returns the embedded dashboard, or nil when the
// build carries no assets so the server falls back to the on-disk
// directory.
func EmbeddedStaticFS() fs.FS {
	if _, err := fs.Stat(staticFiles, "static/index.html"); err != nil {
		return nil
	}
	sub, _ := fs.Sub(staticFiles, "static")
	return sub
}
