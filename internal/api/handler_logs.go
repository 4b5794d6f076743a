package api

import (
	"net/http"
	"strconv"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/store"
)

func parsePage(r *http.Request) store.Page {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return store.Page{Page: page, Limit: limit}
}

func (s *Server) handleLogMessages(w http.ResponseWriter, r *http.Request) {
	filter := store.MessageFilter{ChatID: r.URL.Query().Get("chat_id")}
	messages, err := s.store.ListMessages(r.Context(), parsePage(r), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (s *Server) handleLogRuleFires(w http.ResponseWriter, r *http.Request) {
	filter := store.RuleFireFilter{RuleID: r.URL.Query().Get("rule_id")}
	fires, err := s.store.ListRuleFires(r.Context(), parsePage(r), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rule_fires": fires})
}

func (s *Server) handleLogEvents(w http.ResponseWriter, r *http.Request) {
	filter := store.EventLogFilter{EventKind: r.URL.Query().Get("event_type")}
	events, err := s.store.ListEvents(r.Context(), parsePage(r), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
