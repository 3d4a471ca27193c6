package httpapi

import (
	"embed"
	"io/fs"
	"time"
)

//go:embed assets
var embedded embed.FS

// assetsFS holds the control page files at its root.
var assetsFS = mustSub(embedded, "assets")

// startedAt stamps the rendered index; embedded files carry no mod time.
var startedAt = time.Now()

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// indexPage renders the control page for a mount.
func indexPage(m mount) ([]byte, error) {
	data, err := fs.ReadFile(assetsFS, "index.html")
	if err != nil {
		return nil, err
	}
	return m.page(data), nil
}
