package httpapi

import (
	"errors"
	"net/http"

	"github.com/ohgun/credgate"
	"github.com/ohgun/credgate/middleware"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, fromBody := "", false
	if c, err := r.Cookie(RefreshCookieName); err == nil && c.Value != "" {
		token = c.Value
	} else {
		var body refreshRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		token, fromBody = body.RefreshToken, true
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "refresh credential required")
		return
	}

	pair, err := s.creds.Refresh(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, credgate.ErrRefreshRateLimited):
			writeError(w, http.StatusTooManyRequests, "too many refresh attempts")
		case errors.Is(err, credgate.ErrInvalidCredential),
			errors.Is(err, credgate.ErrReplayDetected),
			errors.Is(err, credgate.ErrUnknownCredential),
			errors.Is(err, credgate.ErrOwnerNotFound):
			s.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "invalid refresh credential")
		default:
			s.logger.Error("refresh failed", "error", err)
			writeError(w, http.StatusInternalServerError, "credential refresh failed")
		}
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	resp := refreshResponse{AccessToken: pair.AccessToken}
	if fromBody {
		resp.RefreshToken = pair.RefreshToken
	}
	writeJSON(w, http.StatusOK, resp)
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Valid     bool                 `json:"valid"`
	SubjectID string               `json:"subjectId,omitempty"`
	Claims    *credgate.Attributes `json:"claims,omitempty"`
	// Exp is the expiry in Unix milliseconds.
	Exp int64 `json:"exp,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Token == "" {
		writeError(w, http.StatusBadRequest, "token required")
		return
	}

	claims, err := s.creds.VerifyAccess(body.Token)
	if err != nil {
		s.logger.Debug("verify rejected", "error", err)
		writeJSON(w, http.StatusOK, verifyResponse{Valid: false})
		return
	}

	resp := verifyResponse{
		Valid:     true,
		SubjectID: claims.Subject,
		Claims:    &claims.Attributes,
	}
	if claims.ExpiresAt != nil {
		resp.Exp = claims.ExpiresAt.UnixMilli()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		token = c.Value
	}
	if token == "" {
		var body refreshRequest
		if err := decodeBody(r, &body); err == nil {
			token = body.RefreshToken
		}
	}

	if token != "" {
		if err := s.creds.Logout(r.Context(), token); err != nil {
			s.logger.Warn("logout incomplete", "error", err)
		}
	}

	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleRevokeAll(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.FromContext(r.Context())

	n, err := s.creds.RevokeAll(r.Context(), id.SubjectID)
	if err != nil {
		s.logger.Error("revoke all failed", "subject", id.SubjectID, "error", err)
		writeError(w, http.StatusInternalServerError, "revoke failed")
		return
	}

	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.creds.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
