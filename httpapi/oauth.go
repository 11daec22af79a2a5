package httpapi

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/ohgun/credgate/login"
	"github.com/ohgun/credgate/middleware"
)

func (s *Server) handleLoginURL(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]

	authURL, state, err := s.signIn.LoginURL(r.Context(), provider)
	if err != nil {
		if errors.Is(err, login.ErrUnknownProvider) {
			writeError(w, http.StatusNotFound, "unknown provider")
			return
		}
		s.logger.Error("login url failed", "provider", provider, "error", err)
		writeError(w, http.StatusInternalServerError, "login unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": authURL, "state": state})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	q := r.URL.Query()

	if idpErr := q.Get("error"); idpErr != "" {
		s.logger.Warn("provider returned error", "provider", provider, "error", idpErr)
		s.redirectError(w, r, provider, "access_denied")
		return
	}

	meta := login.ClientMeta{IP: middleware.ClientIP(r), UserAgent: r.UserAgent()}
	res, err := s.signIn.Complete(r.Context(), provider, q.Get("code"), q.Get("state"), meta)
	if err != nil {
		s.logger.Error("oauth callback failed", "provider", provider, "error", err)
		s.redirectError(w, r, provider, callbackErrorCode(err))
		return
	}

	s.setRefreshCookie(w, res.Pair.RefreshToken)

	v := url.Values{}
	v.Set("accessToken", res.Pair.AccessToken)
	v.Set("refreshToken", res.Pair.RefreshToken)
	v.Set("provider", provider)
	v.Set("success", "true")
	http.Redirect(w, r, s.frontendURL+"/oauth/callback?"+v.Encode(), http.StatusFound)
}

func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, provider, code string) {
	v := url.Values{}
	v.Set("error", code)
	v.Set("provider", provider)
	http.Redirect(w, r, s.frontendURL+"/oauth/error?"+v.Encode(), http.StatusFound)
}

// callbackErrorCode maps sign-in failures to the generic codes shown to the frontend.
func callbackErrorCode(err error) string {
	switch {
	case errors.Is(err, login.ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, login.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, login.ErrUserDisabled):
		return "account_disabled"
	default:
		return "login_failed"
	}
}
