// Package policy holds the capability table deciding which roles may perform which action on
// which resource, and within which scope.
package policy

import (
	"strings"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/user"
)

type (
	Action   string
	Resource string
	Scope    int
)

const (
	View      Action = "view"
	Complete  Action = "complete"
	Submit    Action = "submit"
	Grade     Action = "grade"
	Recompute Action = "recompute"
	List      Action = "list"
	Download  Action = "download"
	Issue     Action = "issue"
	Enroll    Action = "enroll"
)

const (
	Lesson      Resource = "lesson"
	Quiz        Resource = "quiz"
	Certificate Resource = "certificate"
	Enrollment  Resource = "enrollment"
)

const (
	ScopeAny      Scope = iota + 1
	ScopeOwner          // instructor owning the course
	ScopeSelf           // learner the record belongs to
	ScopeEnrolled       // learner enrolled in the course
)

var ErrNotEnrolled = core.NewAuthorizationError("not enrolled in this course")

type (
	// Principal is the verified (userId, role) pair supplied by the auth layer.
	Principal struct {
		UserID int64
		Role   string
	}

	// Facts describe the resource being accessed.
	Facts struct {
		OwnerID   int64 // instructor of the course
		LearnerID int64 // learner the record belongs to
		Enrolled  bool
	}

	capability struct {
		action   Action
		resource Resource
	}

	// rule maps a role prefix to the scope it is granted.
	rule map[string]Scope
)

var table = map[capability]rule{
	{View, Lesson}:     {user.RoleStudent: ScopeEnrolled, user.RoleInstructor: ScopeOwner, user.RoleAdmin: ScopeAny},
	{Complete, Lesson}: {user.RoleStudent: ScopeEnrolled},

	{View, Quiz}:      {user.RoleStudent: ScopeEnrolled, user.RoleInstructor: ScopeOwner, user.RoleAdmin: ScopeAny},
	{Submit, Quiz}:    {user.RoleStudent: ScopeEnrolled},
	{Grade, Quiz}:     {user.RoleInstructor: ScopeOwner, user.RoleAdmin: ScopeAny},
	{Recompute, Quiz}: {user.RoleInstructor: ScopeOwner, user.RoleAdmin: ScopeAny},

	{List, Certificate}:     {user.RoleStudent: ScopeSelf, user.RoleInstructor: ScopeOwner, user.RoleAdmin: ScopeAny},
	{View, Certificate}:     {user.RoleStudent: ScopeSelf, user.RoleInstructor: ScopeOwner, user.RoleAdmin: ScopeAny},
	{Download, Certificate}: {user.RoleStudent: ScopeSelf, user.RoleInstructor: ScopeOwner, user.RoleAdmin: ScopeAny},
	{Issue, Certificate}:    {user.RoleStudent: ScopeSelf, user.RoleInstructor: ScopeOwner, user.RoleAdmin: ScopeAny},

	{Enroll, Enrollment}:   {user.RoleStudent: ScopeSelf, user.RoleAdmin: ScopeAny},
	{Complete, Enrollment}: {user.RoleInstructor: ScopeOwner, user.RoleAdmin: ScopeAny},
}

func (p Principal) IsAdmin() bool      { return strings.HasPrefix(p.Role, user.RoleAdmin) }
func (p Principal) IsInstructor() bool { return strings.HasPrefix(p.Role, user.RoleInstructor) }
func (p Principal) IsStudent() bool    { return strings.HasPrefix(p.Role, user.RoleStudent) }

// ScopeOf returns the scope granted to p for action on resource.
func ScopeOf(p Principal, action Action, resource Resource) (Scope, bool) {
	r, ok := table[capability{action, resource}]
	if !ok {
		return 0, false
	}
	for role, scope := range r {
		if strings.HasPrefix(p.Role, role) {
			return scope, true
		}
	}
	return 0, false
}

// Authorize checks that p may perform action on the resource described by facts.
func Authorize(p Principal, action Action, resource Resource, facts Facts) error {
	scope, ok := ScopeOf(p, action, resource)
	if !ok {
		return core.ErrForbidden
	}
	switch scope {
	case ScopeAny:
		return nil
	case ScopeOwner:
		if facts.OwnerID != 0 && facts.OwnerID == p.UserID {
			return nil
		}
	case ScopeSelf:
		if facts.LearnerID != 0 && facts.LearnerID == p.UserID {
			return nil
		}
	case ScopeEnrolled:
		if facts.Enrolled {
			return nil
		}
		return ErrNotEnrolled
	}
	return core.ErrForbidden
}
