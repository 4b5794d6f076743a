package api

import (
	"net/http"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/orchestrator"
)

func (s *Server) handleHAStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.orchestrator.Status(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHAScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := s.orchestrator.ListScripts(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scripts": scripts})
}

func (s *Server) handleHAAutomations(w http.ResponseWriter, r *http.Request) {
	automations, err := s.orchestrator.ListAutomations(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"automations": automations})
}

func (s *Server) handleHAEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.orchestrator.ListEntities(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entities": entities})
}

func (s *Server) handleHAAllowedServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"services": s.allowList})
}

func (s *Server) handleHACallService(w http.ResponseWriter, r *http.Request) {
	var req callServiceRequest
	if err := decodeJSON(r, &req); err != nil || req.ServiceName == "" {
		writeError(w, http.StatusBadRequest, "service_name is required")
		return
	}

	if err := orchestrator.CheckAllowList(s.allowList, req.ServiceName); err != nil {
		writeUpstreamError(w, err)
		return
	}

	if err := s.orchestrator.CallService(r.Context(), req.ServiceName, req.Target, req.Data); err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "called"})
}
