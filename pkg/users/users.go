// Package users maintains the list of known telegram users and their roles.
package users

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role represents the role of a known user. A user which is not in the list
// at all is a stranger, strangers have no role.
type Role uint

const (
	// RoleUser may query the bot state.
	RoleUser Role = iota
	// RoleAdmin may additionally start backups.
	RoleAdmin
	// RoleOwner may do everything and receives notifications about backup
	// progress and unknown users.
	RoleOwner
)

func (r *Role) parse(str string) error {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "user":
		*r = RoleUser
	case "admin":
		*r = RoleAdmin
	case "owner":
		*r = RoleOwner
	default:
		return fmt.Errorf("invalid role: %s", str)
	}
	return nil
}

// String returns the string representation of a role.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	}
	return fmt.Sprintf("role(%d)", uint(r))
}

// Allows returns true if a user with role 'r' may perform an action which
// requires role 'required'.
func (r Role) Allows(required Role) bool {
	return r >= required
}

// MarshalText implements [encoding.TextMarshaler].
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (r *Role) UnmarshalText(data []byte) error {
	return r.parse(string(data))
}

// User is one entry of the known user list.
type User struct {
	ID   int64 `yaml:"id"`
	Role Role  `yaml:"role"`
}

// UnmarshalYAML implements [yaml.Unmarshaler]. Both keys are required, an
// entry without a role would otherwise silently become a plain user.
func (u *User) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ID   *int64  `yaml:"id"`
		Role *string `yaml:"role"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.ID == nil {
		return fmt.Errorf("user entry without an id")
	}
	if raw.Role == nil {
		return fmt.Errorf("user %d has no role", *raw.ID)
	}
	if err := u.Role.parse(*raw.Role); err != nil {
		return err
	}
	u.ID = *raw.ID
	return nil
}

// List is the list of known users.
type List struct {
	Users []User `yaml:"known_users"`
}

// Load reads the known user list from a YAML file and validates it.
func Load(path string) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	l := &List{}
	if err := yaml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("malformed user list %q: %w", path, err)
	}

	if len(l.Users) == 0 {
		return nil, fmt.Errorf("user list %q contains no users", path)
	}

	ids := make(map[int64]struct{}, len(l.Users))
	owners := 0
	for _, u := range l.Users {
		if _, ok := ids[u.ID]; ok {
			return nil, fmt.Errorf("duplicated user id: %d", u.ID)
		}
		ids[u.ID] = struct{}{}
		if u.Role == RoleOwner {
			owners++
		}
	}
	if owners != 1 {
		return nil, fmt.Errorf("user list %q must contain exactly one owner, got %d", path, owners)
	}

	return l, nil
}

// ByID returns the user with the given telegram id, or nil if the id is
// unknown.
func (l *List) ByID(id int64) *User {
	for i := range l.Users {
		if l.Users[i].ID == id {
			return &l.Users[i]
		}
	}
	return nil
}

// Owner returns the owner of the bot.
func (l *List) Owner() *User {
	for i := range l.Users {
		if l.Users[i].Role == RoleOwner {
			return &l.Users[i]
		}
	}
	return nil
}

// HasPermission returns true if the user with the given id is known and its
// role allows the action which requires role 'required'.
func (l *List) HasPermission(id int64, required Role) bool {
	u := l.ByID(id)
	return u != nil && u.Role.Allows(required)
}
