// Package web holds the embedded dashboard assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var static embed.FS

// Static returns the dashboard files rooted at the asset directory.
func Static() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		// The directory is embedded at build time.
		panic(err)
	}
	return sub
}
