// Package web embeds the dashboard templates and static assets.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"path"
)

//go:embed templates static
var files embed.FS

// LoadTemplates parses every page under templates/pages on top of the base
// layout. Each page is registered under its file name.
func LoadTemplates() (*template.Template, error) {
	base, err := fs.ReadFile(files, "templates/layouts/base.html")
	if err != nil {
		return nil, err
	}

	pages, err := fs.Glob(files, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}

	root := template.New("")
	for _, p := range pages {
		content, err := fs.ReadFile(files, p)
		if err != nil {
			return nil, err
		}

		// Base first; the page's define blocks then override the layout's blocks.
		t := root.New(path.Base(p))
		if _, err := t.Parse(string(base)); err != nil {
			return nil, err
		}
		if _, err := t.Parse(string(content)); err != nil {
			return nil, err
		}
	}

	return root, nil
}

// StaticFS is the static asset tree rooted at static/.
func StaticFS() (fs.FS, error) {
	return fs.Sub(files, "static")
}
