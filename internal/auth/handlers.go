package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"cryptalk/internal/presence"
	"cryptalk/pkg/config"
	"cryptalk/pkg/store"
)

// SessionCookie is the cookie the WebSocket upgrade reads the token from.
const SessionCookie = "session-token"

// Service owns account creation and session issuance. The relay core
// never sees passwords; it only consumes the verified identity this
// service bakes into tokens.
type Service struct {
	logger *slog.Logger
	store  *store.Store
	cfg    config.AuthConfig
}

func NewService(logger *slog.Logger, st *store.Store, cfg config.AuthConfig) *Service {
	return &Service{
		logger: logger.With(slog.String("component", "auth")),
		store:  st,
		cfg:    cfg,
	}
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	PublicKey string `json:"public_key"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Signup creates an account with a bcrypt-hashed password.
func (s *Service) Signup(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	rec := store.UserRecord{
		UserID:       uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		PublicKey:    req.PublicKey,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(rec); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			http.Error(w, "user already exists", http.StatusConflict)
			return
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	s.logger.Info("account created", slog.String("userID", rec.UserID))
	w.WriteHeader(http.StatusCreated)
}

// Login verifies credentials and issues a session token, both as a cookie
// for browser clients and in the response body for everything else.
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := s.store.GetUserByEmail(req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		s.logger.Error("failed to load user", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(req.Password)); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	identity := presence.Identity{
		UserID:      rec.UserID,
		DisplayName: rec.Email,
		PublicKey:   rec.PublicKey,
	}
	token, err := IssueToken(s.cfg.JWTSecret, s.cfg.TokenTTL, identity)
	if err != nil {
		s.logger.Error("failed to issue token", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(s.cfg.TokenTTL),
	})
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tokenResponse{Token: token}); err != nil {
		s.logger.Error("failed to write login response", slog.Any("error", err))
	}
	s.logger.Info("login succeeded", slog.String("userID", rec.UserID))
}
