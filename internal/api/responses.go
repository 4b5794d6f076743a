package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/orchestrator"
	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/provider"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeUpstreamError maps a provider/orchestrator client error onto the
// taxonomy in the error-handling design: permanent errors pass their own
// status code through, transient errors surface as 502, and policy
// refusals surface as 403. Anything else is a 500.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var provPerm *provider.PermanentError
	var provTrans *provider.TransientError
	var orchPerm *orchestrator.PermanentError
	var orchTrans *orchestrator.TransientError
	var policyErr *orchestrator.PolicyRefusedError

	switch {
	case errors.As(err, &policyErr):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &provPerm):
		writeError(w, provPerm.StatusCode, err.Error())
	case errors.As(err, &orchPerm):
		writeError(w, orchPerm.StatusCode, err.Error())
	case errors.As(err, &provTrans), errors.As(err, &orchTrans):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
