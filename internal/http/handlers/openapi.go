package handlers

import (
	_ "embed"
	"encoding/json"
	"net/http"
	"sync"
)

//go:embed openapi.json
var openAPISpec []byte

const redocHTML = `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>seoforge API</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>
      body { margin: 0; padding: 0; }
      redoc { display: block; height: 100vh; }
    </style>
  </head>
  <body>
    <redoc spec-url="/v1/openapi.json"></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
  </body>
</html>`

var (
	specOnce sync.Once
	specDoc  map[string]any
	specErr  error
)

// OpenAPIJSON serves the embedded document with a servers entry pointing at
// the host the request came in on.
func (a *App) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	specOnce.Do(func() {
		specErr = json.Unmarshal(openAPISpec, &specDoc)
	})
	if specErr != nil {
		a.Logger.Error().Err(specErr).Msg("http: embedded openapi document is invalid")
		a.error(w, http.StatusInternalServerError, "internal", "openapi document unavailable")
		return
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	doc := make(map[string]any, len(specDoc)+1)
	for k, v := range specDoc {
		doc[k] = v
	}
	doc["servers"] = []map[string]string{{"url": scheme + "://" + r.Host}}
	a.json(w, http.StatusOK, doc)
}

func (a *App) OpenAPIDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(redocHTML))
}
