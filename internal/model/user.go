package model

import "time"

// PrincipalType is the closed set of member categories a university account
// can belong to.  Gate policies match against these values exactly.
type PrincipalType string

const (
	PrincipalStudent PrincipalType = "student"
	PrincipalFaculty PrincipalType = "faculty"
	PrincipalStaff   PrincipalType = "staff"
)

// Valid reports whether t is one of the known principal types.
func (t PrincipalType) Valid() bool {
	switch t {
	case PrincipalStudent, PrincipalFaculty, PrincipalStaff:
		return true
	}
	return false
}

// Principal represents an account record as stored in the `users` table.
// PasswordHash never leaves the repository/handler boundary.
//
// Fields:
//
//	ID           – primary key (uuid string).
//	Email        – unique, lower-cased email address.
//	PasswordHash – bcrypt hashed password.
//	UniversityID – tenant the member belongs to; empty for unaffiliated accounts.
//	Type         – student, faculty or staff.
//	IsVerified   – whether the university email has been confirmed.
type Principal struct {
	ID               string
	Email            string
	PasswordHash     string
	UniversityID     string
	UniversityName   string
	UniversityDomain string
	Type             PrincipalType
	IsVerified       bool
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Tenant returns the university context carried in access tokens.
func (p Principal) Tenant() TenantContext {
	return TenantContext{
		UniversityID:     p.UniversityID,
		UniversityName:   p.UniversityName,
		UniversityDomain: p.UniversityDomain,
	}
}

// TenantContext holds the university display attributes stamped into
// access tokens.
type TenantContext struct {
	UniversityID     string
	UniversityName   string
	UniversityDomain string
}
