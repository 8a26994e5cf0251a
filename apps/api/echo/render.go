package echoapi

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/auth"
)

//go:embed templates/*.gohtml
var pagesFS embed.FS

var pageFuncs = template.FuncMap{
	"has": core.ContainsString,
	"date": func(t time.Time) string {
		return t.Format("2006-01-02 15:04")
	},
}

// renderer renders the embedded pages, each parsed along with the `_base` layout.
type renderer struct {
	appName string
	pages   map[string]*template.Template
}

var _ echo.Renderer = (*renderer)(nil)

func newRenderer(appName string) (*renderer, error) {
	fps, err := fs.Glob(pagesFS, "templates/*.gohtml")
	if err != nil {
		return nil, errors.Wrap(err, "globbing pages")
	}

	r := &renderer{appName: appName, pages: make(map[string]*template.Template, len(fps))}
	for _, fp := range fps {
		fname := path.Base(fp)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		tmpl, err := template.New(fname).Funcs(pageFuncs).ParseFS(pagesFS, "templates/_base.gohtml", fp)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing page %s", fname)
		}
		r.pages[strings.TrimSuffix(fname, ".gohtml")] = tmpl.Option("missingkey=zero")
	}
	return r, nil
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return errors.Errorf("unknown page %q", name)
	}
	if p, ok := data.(page); ok {
		p.AppName = r.appName
		data = p
	}
	return tmpl.ExecuteTemplate(w, "_base.gohtml", data)
}

// page is the data every page template receives.
type page struct {
	AppName  string
	Identity *auth.Identity
	Path     string
	Notice   string
	Errors   map[string][]string // by field
	Data     echo.Map
}

func newPage(ctx echo.Context, data echo.Map) page {
	if data == nil {
		data = echo.Map{}
	}
	return page{
		Identity: contextIdentity(ctx),
		Path:     ctx.Request().URL.Path,
		Errors:   map[string][]string{},
		Data:     data,
	}
}
