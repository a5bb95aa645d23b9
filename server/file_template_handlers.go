package server

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"
)

//go:embed templates/*
var templateFiles embed.FS

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

// ParseTemplate parses a page together with the shared layout
func ParseTemplate(name string) (*template.Template, error) {
	return template.New(name).Funcs(templateFuncs).ParseFS(TemplateFilesFS(), "layout.html", name)
}

const (
	pageLogin      = "login.html"
	pageHome       = "home.html"
	pageStammdaten = "stammdaten.html"
	pageEinteilung = "einteilung.html"
	pageSettings   = "settings.html"
	pageError      = "error.html"
)

// pages holds every parsed page, keyed by file name.
type pages struct {
	byName map[string]*template.Template
}

func parsePages() (*pages, error) {
	p := &pages{byName: make(map[string]*template.Template)}
	for _, name := range []string{pageLogin, pageHome, pageStammdaten, pageEinteilung, pageSettings, pageError} {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		p.byName[name] = tmpl
	}
	return p, nil
}

// execute renders block of page; block "layout" renders the full page.
func (p *pages) execute(w io.Writer, page, block string, data any) error {
	tmpl, ok := p.byName[page]
	if !ok {
		return fmt.Errorf("unknown page %s", page)
	}
	return tmpl.ExecuteTemplate(w, block, data)
}
