package devserver

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Envelope codes.
const (
	CodeOK            = 200
	CodeBadRequest    = 400
	CodeUnauthorized  = 401
	CodeConflict      = 409
	MessageBadLogin   = "invalid username or password"
	MessageBadCaptcha = "invalid captcha"
)

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// writeEnvelope answers HTTP 200 with a business code.
func writeEnvelope(w http.ResponseWriter, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{Code: code, Message: message, Data: data})
}

// writeStatus answers a non-2xx status. An empty message leaves the body
// without one so the client falls back to its own text.
func writeStatus(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Code: status, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeStatus(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func (s *Server) captchaHandler(w http.ResponseWriter, r *http.Request) {
	s.captchaCalls.Add(1)
	id := uuid.New().String()
	code := fmt.Sprintf("%04d", rand.IntN(10000))

	s.mu.Lock()
	s.captchas[id] = code
	s.mu.Unlock()

	if s.unsolvableCaptcha {
		writeEnvelope(w, CodeOK, "success", map[string]string{
			"captchaId":   id,
			"imageBase64": "data:image/png;base64,iVBORw0KGgo=",
		})
		return
	}
	writeEnvelope(w, CodeOK, "success", map[string]string{"captchaId": id, "captchaText": code})
}

type loginBody struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Captcha   string `json:"captcha"`
	CaptchaID string `json:"captchaId"`
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)
	if s.loginDelay > 0 {
		select {
		case <-time.After(s.loginDelay):
		case <-r.Context().Done():
			return
		}
	}

	var body loginBody
	if !decodeBody(w, r, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if body.CaptchaID != "" {
		code, ok := s.captchas[body.CaptchaID]
		delete(s.captchas, body.CaptchaID)
		if !ok || code != body.Captcha {
			writeEnvelope(w, CodeBadRequest, MessageBadCaptcha, nil)
			return
		}
	}

	u, ok := s.users[body.Username]
	if !ok || !u.checkPassword(body.Password) {
		writeEnvelope(w, CodeBadRequest, MessageBadLogin, nil)
		return
	}

	token, err := s.signer.sign(u, s.generation, s.nowTime(), s.tokenTTL)
	if err != nil {
		log.Err(err).Msg("devserver: token signing failed")
		writeStatus(w, http.StatusInternalServerError, "")
		return
	}
	data := map[string]any{
		"token":    token,
		"role":     u.Role,
		"username": u.Username,
		"userId":   u.ID,
		"email":    u.Email,
	}
	if s.issueRefresh {
		refresh := uuid.New().String()
		s.refreshTokens[refresh] = u.Username
		data["refreshToken"] = refresh
	}
	writeEnvelope(w, CodeOK, "login successful", data)
}

type registerBody struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Email      string `json:"email"`
	VerifyCode string `json:"verifyCode"`
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Username == "" || body.Password == "" {
		writeEnvelope(w, CodeBadRequest, "username and password are required", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[body.Username]; exists {
		writeEnvelope(w, CodeConflict, "username already exists", nil)
		return
	}
	if err := s.addUserLocked(body.Username, body.Password, body.Email, RoleUser); err != nil {
		log.Err(err).Msg("devserver: register failed")
		writeStatus(w, http.StatusInternalServerError, "")
		return
	}
	writeEnvelope(w, CodeOK, "registered", nil)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.logoutCalls.Add(1)
	writeEnvelope(w, CodeOK, "logged out", nil)
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.refreshTokens[body.RefreshToken]
	u := s.users[username]
	if !ok || u == nil {
		writeEnvelope(w, CodeUnauthorized, "refresh token expired", nil)
		return
	}
	delete(s.refreshTokens, body.RefreshToken)

	token, err := s.signer.sign(u, s.generation, s.nowTime(), s.tokenTTL)
	if err != nil {
		log.Err(err).Msg("devserver: token signing failed")
		writeStatus(w, http.StatusInternalServerError, "")
		return
	}
	rotated := uuid.New().String()
	s.refreshTokens[rotated] = u.Username
	writeEnvelope(w, CodeOK, "success", map[string]string{"token": token, "refreshToken": rotated})
}

func (s *Server) verifyCodeHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Email == "" {
		writeEnvelope(w, CodeBadRequest, "email is required", nil)
		return
	}
	writeEnvelope(w, CodeOK, "verification code sent", nil)
}

// StudyPlan is the record served by the protected sample endpoint.
type StudyPlan struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Owner string `json:"owner"`
}

func (s *Server) studyPlansHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := r.Context().Value(claimsKey).(*accessClaims)
	writeEnvelope(w, CodeOK, "success", []StudyPlan{
		{ID: "plan-1", Title: "Linear algebra revision", Owner: claims.Username},
		{ID: "plan-2", Title: "Data structures", Owner: claims.Username},
	})
}

func (s *Server) createStudyPlanHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := r.Context().Value(claimsKey).(*accessClaims)
	var plan StudyPlan
	if !decodeBody(w, r, &plan) {
		return
	}
	if plan.Title == "" {
		writeEnvelope(w, CodeBadRequest, "title is required", nil)
		return
	}
	plan.ID = uuid.New().String()
	plan.Owner = claims.Username
	writeEnvelope(w, CodeOK, "created", plan)
}

func (s *Server) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	s.mu.Unlock()
	writeEnvelope(w, CodeOK, "success", names)
}
