package handler

import (
	"encoding/json"
	"net/http"

	"detectserver/internal/service/websocket"
)

// HealthHandler reports that the server is up, which models are loaded and,
// when the live feed is enabled, how many viewers are connected.
func HealthHandler(models []string, hub *websocket.HubService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status": "ok",
			"models": models,
		}
		if hub != nil {
			status["viewers"] = hub.GetClientCount()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}
