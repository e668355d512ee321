package handlers

import (
	"context"
	"errors"
	"net/http"

	api_models "wolf-backend/internal/models"
	db_models "wolf-backend/internal/models"
	"wolf-backend/internal/services"
	"wolf-backend/pkg/httputil"

	"go.uber.org/zap"
)

// AuthService defines the interface expected from the auth service.
type AuthService interface {
	Signup(ctx context.Context, email, password string) (*db_models.User, error)
	Login(ctx context.Context, email, password string) (*api_models.AuthResponse, error)
}

type AuthHandler struct {
	authService AuthService
	logger      *zap.SugaredLogger
}

func NewAuthHandler(authSvc AuthService, logger *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{
		authService: authSvc,
		logger:      logger,
	}
}

// HandleSignup handles the POST /v1/auth/signup request.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req api_models.SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.authService.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Infof("Signup handler failed for email %s: %v", req.Email, err)
		switch {
		case errors.Is(err, services.ErrUserAlreadyExists):
			httputil.RespondError(w, http.StatusConflict, err.Error()) // 409
		case errors.Is(err, services.ErrValidation):
			httputil.RespondError(w, http.StatusBadRequest, err.Error()) // 400
		default:
			httputil.RespondError(w, http.StatusInternalServerError, "Signup failed due to an internal error") // 500
		}
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, api_models.UserResponse{ID: user.ID, Email: user.Email})
}

// HandleLogin handles the POST /v1/auth/login request.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req api_models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	resp, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Infof("Login handler failed for email %s: %v", req.Email, err)
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			httputil.RespondError(w, http.StatusUnauthorized, err.Error()) // 401
		default:
			httputil.RespondError(w, http.StatusInternalServerError, "Login failed due to an internal error") // 500
		}
		return
	}

	httputil.RespondJSON(w, http.StatusOK, resp)
}
