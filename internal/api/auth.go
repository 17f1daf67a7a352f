package api

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vereinsportal/portal/internal/domain"
)

const SessionCookie = "portal_session"

type ctxKey int

const (
	userKey ctxKey = iota
	sessionKey
)

// compared against when the username is unknown, so both paths cost a bcrypt run
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("portal-dummy-password"), bcrypt.DefaultCost)

// UserStore is the persistence the auth layer needs
type UserStore interface {
	GetUserByUsername(username string) (*domain.User, error)
	GetUserByID(id int64) (*domain.User, error)
	CreateSession(sess *domain.Session) error
	GetSession(id string) (*domain.Session, error)
	TouchSession(id string) error
	DeleteSession(id string) error
}

// HashPassword returns the bcrypt hash stored for a user
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func userFrom(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userKey).(*domain.User)
	return u
}

func sessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey).(string)
	return id
}

// authenticate resolves the caller from the session cookie or Basic auth.
// A successful Basic login gets a fresh session cookie.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*domain.User, string) {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		if user, ok := s.userForSession(c.Value); ok {
			return user, c.Value
		}
	}

	username, password, ok := r.BasicAuth()
	if !ok || username == "" {
		return nil, ""
	}

	user, err := s.users.GetUserByUsername(username)
	if err != nil {
		log.Printf("Auth: lookup user: %v", err)
		return nil, ""
	}
	if user == nil {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ""
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ""
	}

	sess := &domain.Session{ID: uuid.NewString(), UserID: user.ID}
	if err := s.users.CreateSession(sess); err != nil {
		log.Printf("Auth: create session: %v", err)
		return nil, ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	return user, sess.ID
}

func (s *Server) userForSession(id string) (*domain.User, bool) {
	if uuid.Validate(id) != nil {
		return nil, false
	}

	sess, err := s.users.GetSession(id)
	if err != nil || sess == nil {
		return nil, false
	}

	user, err := s.users.GetUserByID(sess.UserID)
	if err != nil || user == nil {
		return nil, false
	}

	if err := s.users.TouchSession(id); err != nil {
		log.Printf("Auth: touch session: %v", err)
	}
	return user, true
}

// requireRole admits callers whose user passes allowed; everyone else,
// anonymous or not, gets the same 403.
func (s *Server) requireRole(allowed func(*domain.User) bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, sessionID := s.authenticate(w, r)
		if user == nil || !allowed(user) {
			s.jsonError(w, "Access denied", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, sessionKey, sessionID)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) member(next http.HandlerFunc) http.HandlerFunc {
	return s.requireRole((*domain.User).CanViewCalendar, next)
}

func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireRole((*domain.User).CanManageCalendar, next)
}

// POST /logout - end the current session
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := sessionFrom(r.Context())
	if err := s.users.DeleteSession(id); err != nil {
		log.Printf("Auth: delete session: %v", err)
	}
	s.calendar.ForgetSession(id)

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	s.jsonResponse(w, map[string]bool{"ok": true})
}
