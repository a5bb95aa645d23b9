package server

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"
)

//go:embed static/*
var staticFiles embed.FS

func StaticFilesFS() fs.FS {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("Failed to create sub filesystem: " + err.Error())
	}

	return subFS
}

type asset struct {
	data  []byte
	ctype string
	etag  string
}

// assets is every embedded file, read once with its content type and etag.
type assets struct {
	byPath  map[string]asset
	started time.Time
}

func loadAssets(fsys fs.FS) (*assets, error) {
	a := &assets{byPath: make(map[string]asset), started: time.Now()}
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		sum := sha256.Sum256(data)
		a.byPath[name] = asset{
			data:  data,
			ctype: contentTypeOf(name, data),
			etag:  `"` + hex.EncodeToString(sum[:8]) + `"`,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func contentTypeOf(name string, data []byte) string {
	ctype := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	if strings.HasPrefix(ctype, "text/") && !strings.Contains(strings.ToLower(ctype), "charset=") {
		ctype += "; charset=utf-8"
	}
	return ctype
}

// serve writes the asset at name; conditional requests get a 304.
func (a *assets) serve(w http.ResponseWriter, r *http.Request, name string) error {
	f, ok := a.byPath[path.Clean(name)]
	if !ok {
		return fmt.Errorf("failed to open %s: %w", name, fs.ErrNotExist)
	}
	w.Header().Set("Content-Type", f.ctype)
	w.Header().Set("ETag", f.etag)
	http.ServeContent(w, r, name, a.started, bytes.NewReader(f.data))
	return nil
}
