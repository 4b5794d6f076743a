package api

import (
	"net/http"
	"strings"
)

// normalizeTarget turns a bare phone number into a WhatsApp-protocol JID:
// if target already names a JID domain ("@..."), it is left untouched;
// otherwise every non-digit is stripped and "@s.whatsapp.net" appended.
func normalizeTarget(target string) string {
	if strings.Contains(target, "@") {
		return target
	}
	var digits strings.Builder
	for _, r := range target {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String() + "@s.whatsapp.net"
}

func (s *Server) handleNotifySend(w http.ResponseWriter, r *http.Request) {
	var req notifySendRequest
	if err := decodeJSON(r, &req); err != nil || req.Message == "" || req.Target == "" {
		writeError(w, http.StatusBadRequest, "message and target are required")
		return
	}

	to := normalizeTarget(req.Target)
	text := req.Message
	if req.Title != "" {
		text = "*" + req.Title + "*\n\n" + text
	}

	var (
		messageID string
		err       error
	)
	switch {
	case req.Data.Image != "":
		messageID, err = s.provider.SendMedia(r.Context(), s.instance, to, req.Data.Image, "image", text)
	case req.Data.Document != "":
		messageID, err = s.provider.SendMedia(r.Context(), s.instance, to, req.Data.Document, "document", text)
	default:
		messageID, err = s.provider.SendText(r.Context(), s.instance, to, text)
	}
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message_id": messageID})
}
