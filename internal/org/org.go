package org

import (
	"time"

	"github.com/google/uuid"
)

// Member roles within an organization.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Member states. Only normal members may book.
const (
	StatusNormal    = "normal"
	StatusGraduated = "graduated"
	StatusDeleted   = "deleted"
)

// Organization is a tenant (a lesson studio).
type Organization struct {
	ID        uuid.UUID
	Name      string
	Timezone  string
	CreatedAt time.Time
}

// Location resolves the organization's IANA timezone, falling back to UTC
// on a bad value so date policy never panics on tenant data.
func (o Organization) Location() *time.Location {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Member binds a person to an organization with a role and a state.
type Member struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	Name      string
	Email     *string
	Role      string
	Status    string
	CreatedAt time.Time
}

// CanBook reports whether this member may hold schedules.
func (m Member) CanBook() bool {
	return m.Status == StatusNormal
}

// Program is a class offered by an organization.
type Program struct {
	ID     uuid.UUID
	OrgID  uuid.UUID
	Name   string
	Active bool
}
