package dispatch

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Reserved query-string parameters; everything else is forwarded to the
// binder by name.
const (
	ParamPage  = "page"
	ParamSize  = "size"
	ParamAsync = "async"
)

// ExtractParams collects request parameters into an untyped map. Sources
// are applied in precedence order, later overriding earlier: query string,
// path variables, form fields, JSON body object (top-level keys only).
func ExtractParams(r *http.Request) map[string]interface{} {
	params := map[string]interface{}{}

	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if key == "*" {
				continue
			}
			params[key] = rctx.URLParams.Values[i]
		}
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case ct == "application/x-www-form-urlencoded" || strings.HasPrefix(ct, "multipart/"):
		if err := r.ParseForm(); err == nil {
			for key, values := range r.PostForm {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}
		}
	case ct == "application/json" && r.Body != nil:
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			for key, value := range body {
				params[key] = value
			}
		}
	}

	return params
}
