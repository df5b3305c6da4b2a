package web

import (
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed dashboard.html
var dashboardHTML string

var dashboardTmpl = template.Must(template.New("dashboard").Parse(dashboardHTML))

// Dashboard serves the live redaction feed page. The page only holds counts
// and category labels streamed from wsPath.
func Dashboard(wsPath string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		if err := dashboardTmpl.Execute(w, struct{ WSPath string }{wsPath}); err != nil {
			http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
		}
	})
}
