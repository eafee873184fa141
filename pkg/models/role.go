package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTag is returned when a wire tag matches neither role.
var ErrUnknownTag = errors.New("unknown message tag")

// Role identifies which quorum group a participant belongs to.
type Role string

const (
	// RolePrimary is the priority group, always served first.
	RolePrimary Role = "PRIMARY"
	// RoleSecondary is served only when the primary group is not full.
	RoleSecondary Role = "SECONDARY"
)

// Roles lists both roles in priority order.
var Roles = []Role{RolePrimary, RoleSecondary}

// Tag is the single opaque message a participant sends to the coordinator.
type Tag string

const (
	TagPrimaryReady   Tag = "PRIMARY_READY"
	TagSecondaryReady Tag = "SECONDARY_READY"
)

// Status is the single opaque reply the coordinator sends at release time.
type Status string

const (
	StatusPrimaryReleased   Status = "PRIMARY_RELEASED"
	StatusSecondaryReleased Status = "SECONDARY_RELEASED"
)

// Participant is one actor of the population. It carries no state beyond its role.
type Participant struct {
	ID   string
	Role Role
}

func (p Participant) String() string {
	return fmt.Sprintf("%s/%s", strings.ToLower(string(p.Role)), p.ID)
}

// ParseRole accepts either role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RolePrimary:
		return RolePrimary, nil
	case RoleSecondary:
		return RoleSecondary, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RolePrimary || r == RoleSecondary
}

// ReadyTag returns the wire tag a participant of this role sends.
func (r Role) ReadyTag() Tag {
	if r == RolePrimary {
		return TagPrimaryReady
	}
	return TagSecondaryReady
}

// ReleasedStatus returns the reply tag sent to members of this role on release.
func (r Role) ReleasedStatus() Status {
	if r == RolePrimary {
		return StatusPrimaryReleased
	}
	return StatusSecondaryReleased
}

// ParseTag maps a raw wire tag to the sending role.
// Anything other than the two exact tag values is a protocol violation.
func ParseTag(raw string) (Role, error) {
	switch Tag(strings.TrimSpace(raw)) {
	case TagPrimaryReady:
		return RolePrimary, nil
	case TagSecondaryReady:
		return RoleSecondary, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTag, raw)
	}
}

// ParseStatus maps a raw reply tag back to the released role.
func ParseStatus(raw string) (Role, error) {
	switch Status(strings.TrimSpace(raw)) {
	case StatusPrimaryReleased:
		return RolePrimary, nil
	case StatusSecondaryReleased:
		return RoleSecondary, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTag, raw)
	}
}
