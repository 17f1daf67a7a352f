package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/vereinsportal/portal/internal/clients/caldav"
	"github.com/vereinsportal/portal/internal/domain"
)

var ErrInvalidSettings = errors.New("invalid calendar settings")

// SettingsView is the settings record as shown to administrators.
// The password itself is never part of it.
type SettingsView struct {
	BaseURL       string
	CalendarPath  string
	Username      string
	DisplayName   string
	HasPassword   bool
	CollectionURL string
}

// SettingsInput is an update from an administrator. An empty Password keeps
// the stored one.
type SettingsInput struct {
	BaseURL      string
	CalendarPath string
	Username     string
	Password     string
	DisplayName  string
}

// GetSettings returns the redacted settings record
func (s *CalendarService) GetSettings() (*SettingsView, error) {
	cs, err := s.loadSettings()
	if err != nil {
		return nil, err
	}
	return &SettingsView{
		BaseURL:       cs.BaseURL,
		CalendarPath:  cs.CalendarPath,
		Username:      cs.Username,
		DisplayName:   cs.DisplayName,
		HasPassword:   cs.Password != "",
		CollectionURL: cs.CollectionURL(),
	}, nil
}

// SaveSettings validates and stores new settings. The password is sealed
// before it reaches the store, and every cached list is dropped.
func (s *CalendarService) SaveSettings(in SettingsInput) (*SettingsView, error) {
	cs := domain.CalendarSettings{
		BaseURL:      in.BaseURL,
		CalendarPath: in.CalendarPath,
		Username:     in.Username,
		DisplayName:  in.DisplayName,
	}
	cs.Normalize()

	if err := validateBaseURL(cs.BaseURL); err != nil {
		return nil, err
	}

	stored := ""
	if in.Password != "" {
		sealed, err := s.secrets.Seal(in.Password)
		if err != nil {
			return nil, fmt.Errorf("seal password: %w", err)
		}
		stored = sealed
	} else {
		existing, err := s.settings.GetCalendarSettings()
		if err != nil {
			return nil, err
		}
		if prev, ok := existing.Get(); ok && prev.Password != "" {
			// Re-seal legacy values on every write
			plain, err := s.secrets.Reveal(prev.Password)
			if err != nil {
				return nil, fmt.Errorf("reveal stored password: %w", err)
			}
			if stored, err = s.secrets.Seal(plain); err != nil {
				return nil, fmt.Errorf("seal password: %w", err)
			}
		}
	}
	cs.Password = stored

	if err := s.settings.SaveCalendarSettings(&cs); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	s.cache.Clear()

	s.logger.Info("calendar settings updated", "collection", cs.CollectionURL(), "username", cs.Username)

	return s.GetSettings()
}

// ResetSettings removes the settings record
func (s *CalendarService) ResetSettings() error {
	if err := s.settings.DeleteCalendarSettings(); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	s.cache.Clear()
	return nil
}

// DiscoverCalendars lists the collections visible to the stored account
func (s *CalendarService) DiscoverCalendars(ctx context.Context) ([]caldav.Calendar, error) {
	cs, err := s.loadSettings()
	if err != nil {
		return nil, err
	}
	transport, err := s.transportFor(cs)
	if err != nil {
		return nil, err
	}
	return transport.DiscoverCalendars(ctx, cs.BaseURL)
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: base URL is required", ErrInvalidSettings)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "https" && scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: base URL must be an absolute http(s) URL", ErrInvalidSettings)
	}
	return nil
}
