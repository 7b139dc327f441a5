package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"sensorwatch/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var dashboardFuncs = template.FuncMap{
	"value": func(r *models.Reading) string {
		if r == nil {
			return "—"
		}
		s := strconv.FormatFloat(r.Value, 'f', 2, 64)
		if r.Unit != "" {
			s += " " + r.Unit
		}
		return s
	},
	"clock": func(t time.Time) string {
		return t.Local().Format("2006-01-02 15:04:05")
	},
	"severityClass": func(s models.AlertSeverity) string {
		switch s {
		case models.AlertSeverityCritical, models.AlertSeverityHigh:
			return "danger"
		case models.AlertSeverityMedium:
			return "warning"
		default:
			return "info"
		}
	},
}

// DashboardHandler renders the HTML dashboard at /.
type DashboardHandler struct {
	svc  Querier
	tmpl *template.Template
}

// NewDashboardHandler parses the embedded templates.
func NewDashboardHandler(svc Querier) (*DashboardHandler, error) {
	tmpl, err := template.New("base").Funcs(dashboardFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &DashboardHandler{svc: svc, tmpl: tmpl}, nil
}

func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		internalError(w, r, err, "failed to load dashboard")
		return
	}

	// render to a buffer so a template error still yields a clean 500
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "dashboard.html", d); err != nil {
		internalError(w, r, err, "failed to render dashboard")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
