package authz

import "errors"

// Configuration errors. Missing assignments, absent ACLs, and denied checks
// are not errors; they resolve to safe defaults and a normal deny result.
var (
	ErrRoleExists       = errors.New("role already exists")
	ErrSystemRole       = errors.New("role id is reserved for a system role")
	ErrUnknownRole      = errors.New("unknown role")
	ErrInheritanceCycle = errors.New("role inheritance cycle")
	ErrGroupExists      = errors.New("group already exists")
	ErrGroupNotFound    = errors.New("group not found")
	ErrUnknownTemplate  = errors.New("unknown permission template")
)
