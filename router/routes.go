package router

import (
	_ "embed"
	"net/url"
	"os"
	"strings"

	apperrors "github.com/jrsteele09/campus-session-client/internal/errors"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var defaultRoutes []byte

// Route is one entry of the route table. Routes are protected unless Public.
type Route struct {
	Path      string   `yaml:"path"`
	Name      string   `yaml:"name"`
	Public    bool     `yaml:"public"`
	GuestOnly bool     `yaml:"guestOnly"` // login and register: logged-in users are sent home
	Roles     []string `yaml:"roles"`     // any of these roles may enter
	Redirect  string   `yaml:"redirect"`
}

// Table is the route table.
type Table struct {
	Home     string  `yaml:"home"`
	Login    string  `yaml:"login"`
	Fallback string  `yaml:"fallback"`
	Routes   []Route `yaml:"routes"`

	byPath map[string]Route
}

// DefaultTable is the built-in route table.
func DefaultTable() (*Table, error) {
	return ParseTable(defaultRoutes)
}

// LoadTableFile reads a route table from a YAML file.
func LoadTableFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "[LoadTableFile] read")
	}
	return ParseTable(data)
}

func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(err, "[ParseTable] yaml")
	}
	t.byPath = make(map[string]Route, len(t.Routes))
	for _, r := range t.Routes {
		if !isInAppPath(r.Path) {
			return nil, errors.Wrapf(apperrors.ErrInvalidPath, "route %q", r.Path)
		}
		if _, dup := t.byPath[r.Path]; dup {
			return nil, errors.Errorf("[ParseTable] duplicate route %q", r.Path)
		}
		t.byPath[r.Path] = r
	}
	for _, p := range []string{t.Home, t.Login, t.Fallback} {
		if _, ok := t.byPath[p]; !ok {
			return nil, errors.Errorf("[ParseTable] %q is not a route", p)
		}
	}
	return &t, nil
}

// Lookup finds the route for a path. A trailing slash is ignored.
func (t *Table) Lookup(path string) (Route, bool) {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	r, ok := t.byPath[path]
	return r, ok
}

// Location is a path inside the app plus its query.
type Location struct {
	Path  string
	Query url.Values
}

// ParseLocation accepts in-app paths only: a single leading slash, no scheme
// and no host.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || !isInAppPath(u.Path) {
		return Location{}, errors.Wrapf(apperrors.ErrInvalidPath, "%q", raw)
	}
	return Location{Path: u.Path, Query: u.Query()}, nil
}

func (l Location) String() string {
	if len(l.Query) == 0 {
		return l.Path
	}
	return l.Path + "?" + l.Query.Encode()
}

func isInAppPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, `\`)
}
