package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dukerupert/galactic-archives/internal/auth"
	"github.com/dukerupert/galactic-archives/internal/store"
)

const minPasswordLength = 6

type AuthHandler struct {
	users  store.Users
	hasher *auth.PasswordHasher
	tokens *auth.Tokens
	logger *slog.Logger

	// decoyHash is verified against when the email is unknown so both
	// failed-login paths cost one Argon2 evaluation.
	decoyOnce sync.Once
	decoyHash string
}

func NewAuthHandler(users store.Users, hasher *auth.PasswordHasher, tokens *auth.Tokens, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// normalizeEmail trims s, lower-cases its domain and reports whether the
// result is a bare address with a dotted domain. The local part keeps its
// case; the stores compare addresses case-insensitively.
func normalizeEmail(s string) (string, bool) {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", false
	}
	at := strings.LastIndexByte(s, '@')
	local, domain := s[:at], strings.ToLower(s[at+1:])
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", false
	}
	return local + "@" + domain, true
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeError(w, err)
		return
	}

	email, ok := normalizeEmail(req.Email)
	if !ok {
		writeError(w, http.StatusBadRequest, "A valid email address is required")
		return
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	u, err := h.users.Create(r.Context(), email, hash)
	if errors.Is(err, store.ErrDuplicateEmail) {
		writeError(w, http.StatusBadRequest, "Email already registered")
		return
	}
	if err != nil {
		storeError(w, h.logger, "Failed to create user", err)
		return
	}

	h.logger.Info("user registered", "user_id", u.ID)
	writeMessage(w, http.StatusCreated, "User created successfully")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeError(w, err)
		return
	}

	email, ok := normalizeEmail(req.Email)
	if !ok {
		email = strings.TrimSpace(req.Email)
	}
	u, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		storeError(w, h.logger, "Failed to log in", err)
		return
	}

	if u == nil {
		h.hasher.Verify(req.Password, h.decoy())
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if !h.hasher.Verify(req.Password, u.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, _, err := h.tokens.Issue(u.Email)
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(h.tokens.TTL().Seconds()),
	})
}

func (h *AuthHandler) decoy() string {
	h.decoyOnce.Do(func() {
		hash, err := h.hasher.Hash("decoy password")
		if err != nil {
			h.logger.Error("hash decoy password", "error", err)
			return
		}
		h.decoyHash = hash
	})
	return h.decoyHash
}

// Me returns the authenticated user. The password hash is never serialized.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
