package api

import (
	"net/http"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/rules"
)

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	yamlText, err := s.store.GetRuleSetYAML(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"yaml": yamlText})
}

func (s *Server) handlePutRules(w http.ResponseWriter, r *http.Request) {
	var req rulesYAMLRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.engine.Save(r.Context(), req.YAML)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !result.Valid {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleValidateRules(w http.ResponseWriter, r *http.Request) {
	var req rulesYAMLRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, rules.ValidateYAML(req.YAML))
}

func (s *Server) handleTestRules(w http.ResponseWriter, r *http.Request) {
	var req testMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event := rules.NormalizedEvent{
		EventKind:         req.Message.EventKind,
		ChatID:            req.Message.ChatID,
		ChatKind:          req.Message.ChatKind,
		SenderID:          req.Message.SenderID,
		SenderName:        req.Message.SenderName,
		Text:              req.Message.Text,
		ProviderMessageID: req.Message.ProviderMessageID,
	}

	writeJSON(w, http.StatusOK, s.engine.TestMessage(event))
}

func (s *Server) handleReloadRules(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reload(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
