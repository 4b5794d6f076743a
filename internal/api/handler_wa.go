package api

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/bakeable/homeassistant-whatsapp-gateway/internal/store"
)

func (s *Server) handleWAStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.provider.ConnectionStatus(r.Context(), s.instance)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"instance_name":       s.instance,
		"evolution_status":    status.State,
		"evolution_connected": status.State == "connected",
	})
}

func (s *Server) handleWACreateInstance(w http.ResponseWriter, r *http.Request) {
	var req createInstanceRequest
	_ = decodeJSON(r, &req)
	name := req.Name
	if name == "" {
		name = s.instance
	}

	created, err := s.provider.EnsureInstance(r.Context(), name)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"name": name, "created": created})
}

func (s *Server) handleWAConnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	qr, err := s.provider.RequestQR(r.Context(), name)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"qr":         qr.Payload,
		"qr_type":    qr.Kind,
		"expires_in": qr.ExpiresInSecs,
	})
}

func (s *Server) handleWAInstanceStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	status, err := s.provider.ConnectionStatus(r.Context(), name)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": status.State, "phone": status.Phone})
}

func (s *Server) handleWADisconnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.provider.Disconnect(r.Context(), name); err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	filter := store.ChatFilter{Kind: r.URL.Query().Get("type")}
	if raw := r.URL.Query().Get("enabled"); raw != "" {
		enabled := raw == "true"
		filter.Enabled = &enabled
	}

	chats, err := s.store.ListChats(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chats": chats})
}

func (s *Server) handleRefreshChats(w http.ResponseWriter, r *http.Request) {
	result := s.sync.Start(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": string(result)})
}

func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sync.Progress())
}

func (s *Server) handleSetChatEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req setChatEnabledRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.SetChatEnabled(r.Context(), id, req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "enabled": req.Enabled})
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	var req sendTextRequest
	if err := decodeJSON(r, &req); err != nil || req.To == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "to and text are required")
		return
	}
	messageID, err := s.provider.SendText(r.Context(), s.instance, req.To, req.Text)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message_id": messageID})
}

func (s *Server) handleSendMedia(w http.ResponseWriter, r *http.Request) {
	var req sendMediaRequest
	if err := decodeJSON(r, &req); err != nil || req.To == "" || req.MediaURL == "" {
		writeError(w, http.StatusBadRequest, "to and media_url are required")
		return
	}
	messageID, err := s.provider.SendMedia(r.Context(), s.instance, req.To, req.MediaURL, req.MediaType, req.Caption)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message_id": messageID})
}
