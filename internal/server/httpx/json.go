package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/izzyreal/fakeipa/internal/logging"
	"github.com/izzyreal/fakeipa/internal/protocol"
)

var log = logging.New("httpx")

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("encode JSON response")
	}
}

// WriteHTTPError writes the {code, name, description} body used for
// routing and transport level failures.
func WriteHTTPError(w http.ResponseWriter, status int, description string) {
	WriteJSON(w, status, protocol.HTTPError{
		Code:        status,
		Name:        http.StatusText(status),
		Description: description,
	})
}

// WriteRESTError writes a command error body with its own status code.
func WriteRESTError(w http.ResponseWriter, e protocol.RESTError) {
	status := e.Code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, e)
}
