package vfs

import (
	"context"
	"fmt"
	"strings"

	"github.com/codewandler/vfs-es/core/ds"
)

// Permission is a single right on a file or folder. Admin implies every
// other permission.
type Permission string

const (
	PermRead   Permission = "read"
	PermWrite  Permission = "write"
	PermDelete Permission = "delete"
	PermShare  Permission = "share"
	PermAdmin  Permission = "admin"
)

func AllPermissions() []Permission {
	return []Permission{PermRead, PermWrite, PermDelete, PermShare, PermAdmin}
}

func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPermissions() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown permission %q", ErrValidation, s)
}

type SubjectType string

const (
	SubjectUser     SubjectType = "user"
	SubjectGroup    SubjectType = "group"
	SubjectEveryone SubjectType = "everyone"
)

// Subject is who an ACE grants permissions to.
type Subject struct {
	Type SubjectType `json:"type"`
	ID   string      `json:"id,omitempty"`
}

func User(id string) Subject  { return Subject{Type: SubjectUser, ID: id} }
func Group(id string) Subject { return Subject{Type: SubjectGroup, ID: id} }
func Everyone() Subject       { return Subject{Type: SubjectEveryone} }

func (s Subject) String() string {
	if s.Type == SubjectEveryone {
		return string(SubjectEveryone)
	}
	return string(s.Type) + ":" + s.ID
}

func (s Subject) Validate() error {
	switch s.Type {
	case SubjectUser, SubjectGroup:
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("%w: %s subject without id", ErrValidation, s.Type)
		}
		return nil
	case SubjectEveryone:
		return nil
	default:
		return fmt.Errorf("%w: unknown subject type %q", ErrValidation, s.Type)
	}
}

// ParseSubject parses "user:<id>", "group:<id>" or "everyone".
func ParseSubject(s string) (Subject, error) {
	if s == string(SubjectEveryone) {
		return Everyone(), nil
	}
	typ, id, ok := strings.Cut(s, ":")
	if !ok {
		return Subject{}, fmt.Errorf("%w: malformed subject %q", ErrValidation, s)
	}
	sub := Subject{Type: SubjectType(typ), ID: id}
	return sub, sub.Validate()
}

// ACE is one entry of an access control list.
type ACE struct {
	Subject     Subject             `json:"subject"`
	Permissions *ds.Set[Permission] `json:"permissions"`
	Inherited   bool                `json:"inherited"`
}

func NewACE(sub Subject, perms ...Permission) ACE {
	return ACE{Subject: sub, Permissions: ds.NewSet(perms...)}
}

// Grants reports whether the entry holds p, directly or through admin.
func (e ACE) Grants(p Permission) bool {
	return e.Permissions.Contains(p) || e.Permissions.Contains(PermAdmin)
}

// ParseACE parses "<subject>=<perm>[,<perm>...]", e.g. "group:eng=read,write".
func ParseACE(s string) (ACE, error) {
	subject, perms, ok := strings.Cut(s, "=")
	if !ok {
		return ACE{}, fmt.Errorf("%w: malformed ace %q", ErrValidation, s)
	}
	sub, err := ParseSubject(subject)
	if err != nil {
		return ACE{}, err
	}
	ace := NewACE(sub)
	for _, p := range strings.Split(perms, ",") {
		perm, err := ParsePermission(p)
		if err != nil {
			return ACE{}, err
		}
		ace.Permissions.Add(perm)
	}
	return ace, nil
}

type ACL []ACE

// DefaultACL grants the owner every permission.
func DefaultACL(ownerID string) ACL {
	return ACL{NewACE(User(ownerID), AllPermissions()...)}
}

func (a ACL) Validate() error {
	for _, e := range a {
		if err := e.Subject.Validate(); err != nil {
			return err
		}
		if e.Permissions.IsEmpty() {
			return fmt.Errorf("%w: ace for %s grants nothing", ErrValidation, e.Subject)
		}
		for _, p := range e.Permissions.Values() {
			if _, err := ParsePermission(string(p)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Allows reports whether userID, member of groups, holds p through any entry.
func (a ACL) Allows(userID string, groups *ds.Set[string], p Permission) bool {
	for _, e := range a {
		if !e.Grants(p) {
			continue
		}
		switch e.Subject.Type {
		case SubjectEveryone:
			return true
		case SubjectUser:
			if e.Subject.ID == userID {
				return true
			}
		case SubjectGroup:
			if groups.Contains(e.Subject.ID) {
				return true
			}
		}
	}
	return false
}

// Allowed is the permission rule: the owner may do anything, everyone else
// needs a granting entry.
func Allowed(ownerID string, acl ACL, userID string, groups *ds.Set[string], p Permission) bool {
	if userID != "" && userID == ownerID {
		return true
	}
	return acl.Allows(userID, groups, p)
}

// GroupResolver reports the groups a user belongs to.
type GroupResolver interface {
	GroupsOf(ctx context.Context, userID string) ([]string, error)
}

type GroupResolverFunc func(ctx context.Context, userID string) ([]string, error)

func (f GroupResolverFunc) GroupsOf(ctx context.Context, userID string) ([]string, error) {
	return f(ctx, userID)
}

// NoGroups resolves every user to no groups.
var NoGroups GroupResolver = GroupResolverFunc(func(context.Context, string) ([]string, error) {
	return nil, nil
})

// StaticGroups maps user ids to their groups.
type StaticGroups map[string][]string

func (s StaticGroups) GroupsOf(_ context.Context, userID string) ([]string, error) {
	return s[userID], nil
}
