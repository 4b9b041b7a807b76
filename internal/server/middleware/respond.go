package middleware

import (
	"encoding/json"
	"net/http"
)

// deny ends the request with a JSON error body in the handler package's
// {"error": ...} shape.
func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
