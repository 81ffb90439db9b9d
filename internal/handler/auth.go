package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openloop/accounts/internal/ctxkeys"
	"github.com/openloop/accounts/internal/model"
	"github.com/openloop/accounts/internal/service"
	"github.com/openloop/accounts/internal/validation"
)

type authHandler struct {
	authService *service.AuthService
	registry    *validation.Registry
}

func NewAuthHandler(authService *service.AuthService, registry *validation.Registry) *authHandler {
	return &authHandler{
		authService: authService,
		registry:    registry,
	}
}

type loginResponse struct {
	User         *model.User `json:"user"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
}

func (h *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		apiError(w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}

	// Uniqueness goes through the exist rule so the storage lookup
	// semantics stay in one place.
	verdict, err := h.registry.Validate("exist", "email", strings.ToLower(strings.TrimSpace(req.Email)), []string{"users"})
	if err != nil {
		apiServiceError(w, err)
		return
	}
	if verdict.Status == validation.StatusRejected {
		apiError(w, http.StatusConflict, verdict.Message)
		return
	}

	user, err := h.authService.Register(req.Name, req.Email, req.Password)
	if err != nil {
		apiServiceError(w, err)
		return
	}

	apiCreated(w, user)
}

func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		apiError(w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}

	user, pair, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		slog.Warn("login failed", "error", err, "email", req.Email)
		apiServiceError(w, err)
		return
	}

	apiSuccess(w, loginResponse{User: user, Token: pair.Token, RefreshToken: pair.RefreshToken}, "")
}

func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := ctxkeys.SessionID(r.Context())
	if sessionID != "" {
		err := h.authService.Logout(sessionID)
		if err != nil {
			apiServiceError(w, err)
			return
		}
	}

	apiSuccess(w, nil, "success")
}

func (h *authHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	user, pair, err := h.authService.Refresh(req.RefreshToken)
	if err != nil {
		apiServiceError(w, err)
		return
	}

	apiSuccess(w, loginResponse{User: user, Token: pair.Token, RefreshToken: pair.RefreshToken}, "")
}

func (h *authHandler) SocialLogin(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("social")

	var req struct {
		SocialToken string `json:"socialToken"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SocialToken == "" {
		apiError(w, http.StatusUnprocessableEntity, "socialToken is required")
		return
	}

	user, pair, err := h.authService.SocialLogin(r.Context(), provider, req.SocialToken)
	if err != nil {
		slog.Warn("social login failed", "error", err, "provider", provider)
		apiServiceError(w, err)
		return
	}

	apiSuccess(w, loginResponse{User: user, Token: pair.Token, RefreshToken: pair.RefreshToken}, "")
}

func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())
	apiSuccess(w, user, "")
}

func (h *authHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" {
		apiError(w, http.StatusUnprocessableEntity, "email is required")
		return
	}

	err := h.authService.ResendVerification(req.Email)
	if err != nil {
		apiServiceError(w, err)
		return
	}

	apiSuccess(w, nil, "Email sent successfully")
}

// Verify consumes an email verification token. Browser flow: success
// redirects to the site root, a bad token gets a generic message with
// no detail.
func (h *authHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	_, err := h.authService.VerifyAccount(token)
	if err != nil {
		slog.Warn("account verification failed", "error", err)
		http.Error(w, "Invalid token", http.StatusBadRequest)
		return
	}

	http.Redirect(w, r, "/?verified=1", http.StatusSeeOther)
}

func (h *authHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" {
		apiError(w, http.StatusUnprocessableEntity, "email is required")
		return
	}

	err := h.authService.ForgotPassword(req.Email)
	if err != nil {
		apiServiceError(w, err)
		return
	}

	apiSuccess(w, nil, "Email sent successfully")
}

// ResetForm gates the password reset form behind a live token.
// Browser flow, minimal inline markup.
func (h *authHandler) ResetForm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	_, err := h.authService.ResolveResetToken(token)
	if err != nil {
		slog.Warn("reset form gate failed", "error", err)
		http.Error(w, "Invalid token", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, resetFormHTML, token)
}

func (h *authHandler) CompleteReset(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("token")
	password := r.FormValue("password")
	confirmation := r.FormValue("passwordConfirmation")

	_, err := h.authService.CompletePasswordReset(token, password, confirmation)
	if err != nil {
		slog.Warn("password reset failed", "error", err)
		http.Error(w, "Invalid token", http.StatusBadRequest)
		return
	}

	http.Redirect(w, r, "/?reset=1", http.StatusSeeOther)
}

func (h *authHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req struct {
		Password    string `json:"password"`
		NewPassword string `json:"newPassword"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Password == "" || req.NewPassword == "" {
		apiError(w, http.StatusUnprocessableEntity, "password and newPassword are required")
		return
	}

	// The context copy has no hash; reload before comparing.
	current, err := h.authService.Me(user.ID)
	if err != nil {
		apiServiceError(w, err)
		return
	}

	err = h.authService.ChangePassword(current, req.Password, req.NewPassword)
	if err != nil {
		apiServiceError(w, err)
		return
	}

	apiSuccess(w, current, "Change password successfully")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil {
		apiError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

const resetFormHTML = `<!DOCTYPE html>
<html>
<head><title>Reset password</title></head>
<body>
<form method="POST" action="/password/reset">
  <input type="hidden" name="token" value="%s">
  <label>New password <input type="password" name="password"></label>
  <label>Confirm password <input type="password" name="passwordConfirmation"></label>
  <button type="submit">Reset password</button>
</form>
</body>
</html>
`
