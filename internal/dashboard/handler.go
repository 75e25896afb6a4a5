// Package dashboard serves the page descriptors of the console dashboard.
package dashboard

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/leofleet/fleet-console/internal/guard"
	"github.com/leofleet/fleet-console/internal/platform/httpx"
	"github.com/leofleet/fleet-console/internal/rbac"
)

var sectionTitles = map[string]string{
	"users":       "Users",
	"vehicles":    "Vehicles",
	"drivers":     "Drivers",
	"inspections": "Vehicle Inspections",
	"insurance":   "Insurance",
	"services":    "Vehicle Services",
	"issues":      "Vehicle Issues",
	"reports":     "Reports",
}

// Page describes what the client should render for a dashboard path.
type Page struct {
	Page         string                        `json:"page"`
	Title        string                        `json:"title"`
	Section      string                        `json:"section,omitempty"`
	RecordID     string                        `json:"recordId,omitempty"`
	Notice       string                        `json:"notice,omitempty"`
	Profile      *rbac.Profile                 `json:"profile"`
	Capabilities map[rbac.Module][]rbac.Action `json:"capabilities"`
}

// Handler serves /dashboard/*.
type Handler struct {
	guard     *guard.Handler
	evaluator *rbac.Evaluator
}

// NewHandler constructs a Handler.
func NewHandler(g *guard.Handler, evaluator *rbac.Evaluator) *Handler {
	return &Handler{guard: g, evaluator: evaluator}
}

// MountRoutes registers the dashboard routes behind the route guard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.Protect)
	r.Get("/", h.show)
	r.Get("/*", h.show)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	page, ok := Describe(r.URL.Path)
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown dashboard page")
		return
	}
	p := rbac.ProfileFromContext(r.Context())
	page.Profile = p
	page.Capabilities = h.evaluator.Capabilities(p)
	page.Notice = r.URL.Query().Get(guard.NoticeParam)
	httpx.JSON(w, http.StatusOK, page)
}

// Describe maps a dashboard path to its page descriptor.
func Describe(urlPath string) (Page, bool) {
	rest := strings.Trim(strings.TrimPrefix(urlPath, "/dashboard"), "/")
	if rest == "" {
		return Page{Page: "home", Title: "Dashboard"}, true
	}
	parts := strings.Split(rest, "/")
	title, ok := sectionTitles[parts[0]]
	if !ok {
		return Page{}, false
	}
	page := Page{Section: parts[0], Title: title}
	switch {
	case len(parts) == 1:
		page.Page = parts[0] + ".list"
	case parts[0] == "reports":
		page.Page = "reports.view"
		page.RecordID = strings.Join(parts[1:], "/")
	case len(parts) == 2 && parts[1] == "new":
		page.Page = parts[0] + ".new"
		page.Title = "New " + singular(title)
	case len(parts) == 3 && parts[1] == "edit":
		page.Page = parts[0] + ".edit"
		page.Title = "Edit " + singular(title)
		page.RecordID = parts[2]
	case len(parts) == 2:
		page.Page = parts[0] + ".detail"
		page.Title = singular(title)
		page.RecordID = parts[1]
	default:
		return Page{}, false
	}
	return page, true
}

func singular(title string) string {
	if title == "Insurance" {
		return title
	}
	return strings.TrimSuffix(title, "s")
}
