package handler

import "net/http"

// HandleHello is the liveness probe.
//
// HTTP: GET /api → {"message":"Hello, World!"}
func HandleHello(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello, World!"})
}
