package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestSwaggerHandler(t *testing.T) {
	sh, err := NewSwaggerHandler("Chatlogs API", OpenAPISpec)
	if err != nil {
		t.Fatalf("NewSwaggerHandler failed: %v", err)
	}
	r := chi.NewRouter()
	sh.RegisterRoutes(r)

	rec := do(t, r, http.MethodGet, "/docs/openapi.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatalf("openapi.json is not JSON: %v", err)
	}
	if doc.OpenAPI != "3.0.3" {
		t.Errorf("openapi = %q", doc.OpenAPI)
	}
	if _, ok := doc.Paths["/sync"]["post"]; !ok {
		t.Error("openapi document has no POST /sync")
	}

	if rec := do(t, r, http.MethodGet, "/docs"); rec.Code != http.StatusOK {
		t.Errorf("ui code = %d", rec.Code)
	}
}

func TestYAMLToJSON_NonStringKeys(t *testing.T) {
	out, err := yamlToJSON([]byte("responses:\n  200: ok\n  404: missing\n"))
	if err != nil {
		t.Fatalf("yamlToJSON failed: %v", err)
	}
	var doc map[string]map[string]string
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if doc["responses"]["200"] != "ok" || doc["responses"]["404"] != "missing" {
		t.Errorf("unexpected doc %v", doc)
	}
}
