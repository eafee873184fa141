package models_test

import (
	"errors"
	"testing"

	. "quorumgate/pkg/models"
)

func TestParseTag_KnownTags(t *testing.T) {
	tests := map[string]Role{
		"PRIMARY_READY":       RolePrimary,
		"SECONDARY_READY":     RoleSecondary,
		"  SECONDARY_READY\n": RoleSecondary,
	}

	for raw, want := range tests {
		got, err := ParseTag(raw)
		if err != nil {
			t.Errorf("ParseTag(%q) returned error: %v", raw, err)
			continue
		}
		if got != want {
			t.Errorf("ParseTag(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestParseTag_RejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "primary_ready", "REINDEER_READY", "PRIMARY_RELEASED"} {
		if _, err := ParseTag(raw); !errors.Is(err, ErrUnknownTag) {
			t.Errorf("ParseTag(%q) expected ErrUnknownTag, got %v", raw, err)
		}
	}
}

func TestRole_TagRoundTrip(t *testing.T) {
	for _, role := range Roles {
		got, err := ParseTag(string(role.ReadyTag()))
		if err != nil || got != role {
			t.Errorf("ready tag for %s did not round trip: %s, %v", role, got, err)
		}

		got, err = ParseStatus(string(role.ReleasedStatus()))
		if err != nil || got != role {
			t.Errorf("released status for %s did not round trip: %s, %v", role, got, err)
		}
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("primary"); err != nil || r != RolePrimary {
		t.Errorf("expected primary, got %s, %v", r, err)
	}
	if r, err := ParseRole(" Secondary "); err != nil || r != RoleSecondary {
		t.Errorf("expected secondary, got %s, %v", r, err)
	}
	if _, err := ParseRole("elf"); err == nil {
		t.Error("expected error for unknown role")
	}
}
