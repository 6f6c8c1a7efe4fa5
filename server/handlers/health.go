package handlers

import (
	"encoding/json"
	"net/http"
)

// Health reports that the process is up. It does not contact the provider.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
