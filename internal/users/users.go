// Package users provides read-only user profiles: identity for issue
// filtering and the refresh cadence that decides cache freshness.
package users

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pulse-mcp/internal/cache"
)

var ErrUnknownUser = errors.New("unknown user")

// Profile is one user as seen by the metrics core.
type Profile struct {
	ID          string
	Email       string
	DisplayName string
	Projects    []string
	Cadence     cache.Cadence
}

// Directory resolves profiles by id.
type Directory struct {
	defaultID string
	profiles  map[string]Profile
	order     []string
}

type fileSchedule struct {
	Enabled   bool     `yaml:"enabled"`
	Frequency string   `yaml:"frequency"`
	Days      []string `yaml:"days"`
}

type fileUser struct {
	ID          string       `yaml:"id"`
	Email       string       `yaml:"email"`
	DisplayName string       `yaml:"display_name"`
	Projects    []string     `yaml:"projects"`
	Schedule    fileSchedule `yaml:"schedule"`
}

type fileFormat struct {
	DefaultUser string     `yaml:"default_user"`
	Users       []fileUser `yaml:"users"`
}

// Load reads a users YAML file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}
	return Parse(data)
}

// Parse decodes the users YAML document.
func Parse(data []byte) (*Directory, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}

	d := &Directory{profiles: make(map[string]Profile), defaultID: f.DefaultUser}
	for _, u := range f.Users {
		p, err := u.profile()
		if err != nil {
			return nil, err
		}
		if _, dup := d.profiles[p.ID]; dup {
			return nil, fmt.Errorf("duplicate user %q", p.ID)
		}
		d.profiles[p.ID] = p
		d.order = append(d.order, p.ID)
	}

	if d.defaultID == "" && len(d.order) > 0 {
		d.defaultID = d.order[0]
	}
	if d.defaultID != "" {
		if _, ok := d.profiles[d.defaultID]; !ok {
			return nil, fmt.Errorf("default user %q: %w", d.defaultID, ErrUnknownUser)
		}
	}
	return d, nil
}

func (u fileUser) profile() (Profile, error) {
	id := strings.TrimSpace(u.ID)
	if id == "" {
		id = strings.TrimSpace(u.Email)
	}
	if id == "" {
		return Profile{}, fmt.Errorf("user entry needs an id or email")
	}

	days, err := cache.ParseWeekdays(u.Schedule.Days)
	if err != nil {
		return Profile{}, fmt.Errorf("user %s: %w", id, err)
	}

	return Profile{
		ID:          id,
		Email:       strings.TrimSpace(u.Email),
		DisplayName: u.DisplayName,
		Projects:    u.Projects,
		Cadence: cache.Cadence{
			SchedulerEnabled: u.Schedule.Enabled,
			Frequency:        cache.Frequency(strings.ToLower(u.Schedule.Frequency)),
			Days:             days,
		},
	}, nil
}

// Single builds a directory holding one profile, used when no users file is configured.
func Single(p Profile) *Directory {
	return &Directory{
		defaultID: p.ID,
		profiles:  map[string]Profile{p.ID: p},
		order:     []string{p.ID},
	}
}

// Lookup returns the profile for id, or the default profile when id is empty.
func (d *Directory) Lookup(id string) (Profile, error) {
	if id == "" {
		id = d.defaultID
	}
	p, ok := d.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%q: %w", id, ErrUnknownUser)
	}
	return p, nil
}

// All returns profiles in file order.
func (d *Directory) All() []Profile {
	out := make([]Profile, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.profiles[id])
	}
	return out
}
