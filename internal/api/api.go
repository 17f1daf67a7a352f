// Package api serves the calendar REST endpoints of the portal.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/vereinsportal/portal/internal/domain"
	"github.com/vereinsportal/portal/internal/service"
)

type EventResponse struct {
	Href           string `json:"href"`
	Summary        string `json:"summary"`
	Location       string `json:"location"`
	Description    string `json:"description"`
	DTStart        string `json:"dtstart"`
	DTStartDisplay string `json:"dtstart_display"`
	DTEnd          string `json:"dtend"`
	DTEndDisplay   string `json:"dtend_display"`
}

type EventsResponse struct {
	Items  []EventResponse `json:"items"`
	Cached bool            `json:"cached"`
	Status string          `json:"status"`
}

type SettingsResponse struct {
	BaseURL       string `json:"base_url"`
	CalendarPath  string `json:"calendar_path"`
	Username      string `json:"username"`
	DisplayName   string `json:"display_name"`
	HasPassword   bool   `json:"has_password"`
	CollectionURL string `json:"collection_url"`
}

type CalendarResponse struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server holds the handlers of the calendar API
type Server struct {
	calendar *service.CalendarService
	users    UserStore
	mux      *http.ServeMux
}

// NewServer creates the API and registers its routes
func NewServer(calendar *service.CalendarService, users UserStore) *Server {
	s := &Server{
		calendar: calendar,
		users:    users,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("/health", s.health)

	// Calendar (members and admins)
	s.mux.HandleFunc("/calendar/events", s.member(s.apiEvents))
	s.mux.HandleFunc("/calendar/events.ics", s.member(s.apiEventsICS))

	// Calendar administration
	s.mux.HandleFunc("/calendar/settings", s.admin(s.apiSettings))
	s.mux.HandleFunc("/calendar/calendars", s.admin(s.apiCalendars))

	s.mux.HandleFunc("/logout", s.requireRole(func(*domain.User) bool { return true }, s.logout))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err})
}

// notConfigured is a normal answer, not an error status
func (s *Server) notConfigured(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": "Calendar not configured",
		"items": []EventResponse{},
	})
}

// GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// GET /calendar/events - upcoming events of the shared calendar
func (s *Server) apiEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, err := s.calendar.UpcomingEvents(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.jsonResponse(w, EventsResponse{
		Items:  eventsToResponse(res.Items),
		Cached: res.Cached,
		Status: string(res.Status),
	})
}

// GET /calendar/events.ics - the same window as an iCalendar feed
func (s *Server) apiEventsICS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, err := s.calendar.UpcomingEvents(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrNotConfigured) {
			s.jsonError(w, "Calendar not configured", http.StatusNotFound)
			return
		}
		s.serviceError(w, err)
		return
	}

	body, err := s.calendar.ExportICS(res.Items)
	if err != nil {
		log.Printf("API: export ics: %v", err)
		s.jsonError(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="termine.ics"`)
	w.Write([]byte(body))
}

// GET /calendar/settings - show settings without the password
// PUT /calendar/settings - replace settings
// DELETE /calendar/settings - unconfigure the calendar
func (s *Server) apiSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		view, err := s.calendar.GetSettings()
		if err != nil {
			if errors.Is(err, service.ErrNotConfigured) {
				s.jsonError(w, "Calendar not configured", http.StatusNotFound)
				return
			}
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, settingsToResponse(view))

	case http.MethodPut:
		var req struct {
			BaseURL      string `json:"base_url"`
			CalendarPath string `json:"calendar_path"`
			Username     string `json:"username"`
			Password     string `json:"password"`
			DisplayName  string `json:"display_name"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		view, err := s.calendar.SaveSettings(service.SettingsInput{
			BaseURL:      req.BaseURL,
			CalendarPath: req.CalendarPath,
			Username:     req.Username,
			Password:     req.Password,
			DisplayName:  req.DisplayName,
		})
		if err != nil {
			if errors.Is(err, service.ErrInvalidSettings) {
				s.jsonError(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.serviceError(w, err)
			return
		}

		if u := userFrom(r.Context()); u != nil {
			log.Printf("API: calendar settings changed by %s", u.Username)
		}
		s.jsonResponse(w, settingsToResponse(view))

	case http.MethodDelete:
		if err := s.calendar.ResetSettings(); err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, map[string]bool{"ok": true})

	default:
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /calendar/calendars - collections visible to the stored account
func (s *Server) apiCalendars(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	calendars, err := s.calendar.DiscoverCalendars(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrNotConfigured) {
			s.jsonError(w, "Calendar not configured", http.StatusNotFound)
			return
		}
		log.Printf("API: discover calendars: %v", err)
		s.jsonError(w, "Calendar discovery failed", http.StatusBadGateway)
		return
	}

	result := make([]CalendarResponse, 0, len(calendars))
	for _, c := range calendars {
		result = append(result, CalendarResponse{
			Path:        c.Path,
			DisplayName: c.DisplayName,
			Description: c.Description,
		})
	}

	s.jsonResponse(w, result)
}

func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotConfigured):
		s.notConfigured(w)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.jsonError(w, "Request aborted", http.StatusServiceUnavailable)
	default:
		log.Printf("API: %v", err)
		s.jsonError(w, "Internal error", http.StatusInternalServerError)
	}
}

func eventsToResponse(events []domain.CalendarEvent) []EventResponse {
	result := make([]EventResponse, 0, len(events))
	for _, e := range events {
		result = append(result, EventResponse{
			Href:           e.Href,
			Summary:        e.Summary,
			Location:       e.Location,
			Description:    e.Description,
			DTStart:        e.Start.Raw,
			DTStartDisplay: e.Start.Display,
			DTEnd:          e.End.Raw,
			DTEndDisplay:   e.End.Display,
		})
	}
	return result
}

func settingsToResponse(v *service.SettingsView) SettingsResponse {
	return SettingsResponse{
		BaseURL:       v.BaseURL,
		CalendarPath:  v.CalendarPath,
		Username:      v.Username,
		DisplayName:   v.DisplayName,
		HasPassword:   v.HasPassword,
		CollectionURL: v.CollectionURL,
	}
}
