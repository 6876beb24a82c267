// Package entity holds the onboarding domain types: the raw entities read from the
// source of record, their validated forms and the program and role records.
package entity

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindOrganization Kind = "Organization"
	KindSchool       Kind = "School"
	KindClass        Kind = "Class"
	KindUser         Kind = "User"

	// Program and role records are resolved, never processed as work items.
	KindProgram Kind = "Program"
	KindRole    Kind = "Role"
)

// FullMigrationID is the organization id that stands for every known organization.
const FullMigrationID = "ALL"

var processable = []Kind{KindOrganization, KindSchool, KindClass, KindUser}

func Kinds() []Kind {
	out := make([]Kind, len(processable))
	copy(out, processable)
	return out
}

// ParseKind accepts the processable kinds, case-insensitively.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for _, k := range processable {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// Children lists the kinds that cascade from k.
func (k Kind) Children() []Kind {
	switch k {
	case KindOrganization:
		return []Kind{KindSchool}
	case KindSchool:
		return []Kind{KindClass, KindUser}
	default:
		return nil
	}
}

func (k Kind) HasChild(child Kind) bool {
	for _, c := range k.Children() {
		if c == child {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }
