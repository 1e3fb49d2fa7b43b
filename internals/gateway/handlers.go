package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/loopline/realtime/internals/call"
	"github.com/loopline/realtime/internals/moderation"
)

// Identity comes from the upstream auth layer, which is an external
// collaborator. It forwards the authenticated user on these headers.
const (
	headerUserID     = "X-User-ID"
	headerUserName   = "X-User-Name"
	headerUserAvatar = "X-User-Avatar"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// requireUser resolves the authenticated user and applies rate limiting.
// Returns "" after writing the response when the request must not proceed.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := r.Header.Get(headerUserID)
	if !s.validID(userID) {
		writeError(w, http.StatusUnauthorized, "missing or malformed user identity")
		return ""
	}
	if !s.allowRequest(userID) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return ""
	}
	return userID
}

func (s *Server) mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, call.ErrValidation), errors.Is(err, moderation.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, call.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, call.ErrNotParticipant):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		s.logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type initiateCallRequest struct {
	RoomID     string `json:"roomId"`
	Token      string `json:"token"`
	ReceiverID string `json:"receiverId"`
	MediaType  string `json:"mediaType"`
}

func (s *Server) handleInitiateCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}

	var req initiateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.validID(req.RoomID) || !s.validID(req.Token) || !s.validID(req.ReceiverID) {
		writeError(w, http.StatusBadRequest, "missing or malformed identifier")
		return
	}
	if req.MediaType != "audio" && req.MediaType != "video" {
		writeError(w, http.StatusBadRequest, "mediaType must be audio or video")
		return
	}

	err := s.calls.Initiate(r.Context(), call.InitiateParams{
		RoomID:       req.RoomID,
		Token:        req.Token,
		CallerID:     userID,
		CallerName:   r.Header.Get(headerUserName),
		CallerAvatar: r.Header.Get(headerUserAvatar),
		ReceiverID:   req.ReceiverID,
		MediaType:    req.MediaType,
	})
	if err != nil {
		s.mapError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"roomId": req.RoomID, "status": "ringing"})
}

type validateTokenRequest struct {
	RoomID string `json:"roomId"`
	Token  string `json:"token"`
}

type validateTokenResponse struct {
	Valid      bool   `json:"valid"`
	CallerID   string `json:"callerId"`
	ReceiverID string `json:"receiverId"`
	MediaType  string `json:"mediaType"`
}

func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}

	var req validateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.validID(req.RoomID) || !s.validID(req.Token) {
		writeError(w, http.StatusBadRequest, "missing or malformed identifier")
		return
	}

	session, err := s.calls.ValidateToken(r.Context(), req.RoomID, req.Token, userID)
	if err != nil {
		s.mapError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, validateTokenResponse{
		Valid:      true,
		CallerID:   session.CallerID,
		ReceiverID: session.ReceiverID,
		MediaType:  session.MediaType,
	})
}

type createReportRequest struct {
	ContextID string `json:"contextId"`
	TargetID  string `json:"targetId"`
	Type      string `json:"type"`
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}

	var req createReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.validID(req.ContextID) || !s.validID(req.TargetID) {
		writeError(w, http.StatusBadRequest, "missing or malformed identifier")
		return
	}

	count, err := s.moderation.Report(r.Context(), req.ContextID, req.TargetID)
	if err != nil {
		s.mapError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"count": count})
}

type banViewerRequest struct {
	StreamID      string `json:"streamId"`
	TargetID      string `json:"targetId"`
	Reason        string `json:"reason"`
	DurationClass string `json:"durationClass"`
}

func (s *Server) handleBanViewer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}

	var req banViewerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.validID(req.StreamID) || !s.validID(req.TargetID) {
		writeError(w, http.StatusBadRequest, "missing or malformed identifier")
		return
	}

	record, err := s.moderation.BanViewer(
		r.Context(),
		req.StreamID,
		req.TargetID,
		userID,
		req.Reason,
		moderation.DurationClass(req.DurationClass),
	)
	if err != nil {
		s.mapError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"banId": record.ID})
}
