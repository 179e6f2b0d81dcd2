package middleware

import (
	"slices"
	"time"

	"github.com/iliyamo/campus-auth/internal/model"
)

// Policy is the option set one route group is protected with.  Checks run in
// a fixed order: token, tenant, verification, principal type, session, rate
// limit.  The first failing check decides the response.
type Policy struct {
	RequireAuth         bool
	RequireTenant       bool
	RequireVerification bool
	AllowedTypes        []model.PrincipalType // empty admits every type
	RateLimit           *RateLimitPolicy      // nil falls back to the gate default
}

// RateLimitPolicy allows Max requests per Window per (caller, route).
type RateLimitPolicy struct {
	Window time.Duration
	Max    int
}

// AnyMember admits any authenticated member of a university.
func AnyMember() Policy {
	return Policy{RequireAuth: true, RequireTenant: true}
}

// VerifiedMember is AnyMember with a confirmed university email.
func VerifiedMember() Policy {
	return Policy{RequireAuth: true, RequireTenant: true, RequireVerification: true}
}

func FacultyStaffOnly() Policy {
	return Policy{
		RequireAuth:   true,
		RequireTenant: true,
		AllowedTypes:  []model.PrincipalType{model.PrincipalFaculty, model.PrincipalStaff},
	}
}

func StudentsOnly() Policy {
	return Policy{
		RequireAuth:   true,
		RequireTenant: true,
		AllowedTypes:  []model.PrincipalType{model.PrincipalStudent},
	}
}

// Optional lets anonymous callers through; a presented token must still be
// valid and is attached when it is.
func Optional() Policy {
	return Policy{}
}

// Authenticated only requires a valid token and session, without tenant or
// type checks.  Session management routes use it so that a member can always
// log out.
func Authenticated() Policy {
	return Policy{RequireAuth: true}
}

// WithRateLimit returns a copy of p limited to max requests per window.
func (p Policy) WithRateLimit(window time.Duration, max int) Policy {
	p.RateLimit = &RateLimitPolicy{Window: window, Max: max}
	return p
}

// check applies the claim-only checks, in order.
func (p Policy) check(claims *model.AccessTokenClaims) *Rejection {
	if p.RequireTenant && claims.UniversityID == "" {
		return reject(CodeTenantRequired)
	}
	if p.RequireVerification && !claims.IsVerified {
		return reject(CodeVerificationRequired)
	}
	if len(p.AllowedTypes) > 0 && !slices.Contains(p.AllowedTypes, claims.UserType) {
		return reject(CodeInsufficientPermissions)
	}
	return nil
}
