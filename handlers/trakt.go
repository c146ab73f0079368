package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"tmdbhelper/services/trakt"
)

// TraktAuth is the login surface of the Trakt authorizer.
type TraktAuth interface {
	State() trakt.AuthState
	StartLogin(ctx context.Context) (*trakt.DeviceCodeResponse, error)
}

// TraktHandler exposes the Trakt device login.
type TraktHandler struct {
	auth TraktAuth
}

func NewTraktHandler(auth TraktAuth) *TraktHandler {
	return &TraktHandler{auth: auth}
}

// LoginResponse is the device code the user enters at the verification URL.
type LoginResponse struct {
	UserCode        string `json:"userCode"`
	VerificationURL string `json:"verificationUrl"`
	ExpiresIn       int    `json:"expiresIn"`
	Interval        int    `json:"interval"`
}

// Login starts (or resumes) the device code flow.
// POST /trakt/login
func (h *TraktHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		jsonError(w, "Trakt is not configured", http.StatusServiceUnavailable)
		return
	}
	code, err := h.auth.StartLogin(r.Context())
	if err != nil {
		jsonError(w, "Failed to start Trakt login: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(LoginResponse{
		UserCode:        code.UserCode,
		VerificationURL: code.VerificationURL,
		ExpiresIn:       code.ExpiresIn,
		Interval:        code.Interval,
	})
}

// Status reports the authorization state.
// GET /trakt/status
func (h *TraktHandler) Status(w http.ResponseWriter, r *http.Request) {
	state := trakt.Unauthorized
	if h.auth != nil {
		state = h.auth.State()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"configured": h.auth != nil,
		"state":      state.String(),
		"authorized": state != trakt.Unauthorized,
	})
}
