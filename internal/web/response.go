package web

import (
	"encoding/json"
	"net/http"
)

func JSONResponse(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}

func ErrorResponse(w http.ResponseWriter, code int, status string, message string) error {
	body := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"status":  status,
		},
	}
	return JSONResponse(w, code, body)
}
