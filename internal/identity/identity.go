// Package identity resolves the roles an actor holds for a document.
//
// Roles come from two places: the document itself (its author, reviewer and
// approver fields grant the matching role to those actors) and an optional
// site policy file granting admins and standing reviewer/approver roles.
package identity

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/vellum-dms/vellum/internal/types"
)

// SystemActor is the reserved actor name used by the scheduler for
// automated transitions. It always holds RoleSystem and nothing else.
const SystemActor = "system"

// Provider resolves the roles an actor holds for a given document.
type Provider interface {
	RolesFor(actor string, doc *types.Document) []types.Role
}

// Policy is a site-wide role grant, typically loaded from a TOML file.
// The zero value grants nothing beyond per-document roles.
type Policy struct {
	// Admins may perform any non-system operation on any document.
	Admins []string `toml:"admins"`
	// Reviewers hold the reviewer role on every document, not just those
	// naming them in the reviewer field.
	Reviewers []string `toml:"reviewers"`
	// Approvers hold the approver role on every document.
	Approvers []string `toml:"approvers"`
}

// LoadPolicy reads a policy file. A missing file yields an empty policy
// rather than an error so that the file stays optional.
func LoadPolicy(path string) (*Policy, error) {
	var p Policy
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &p, nil
		}
		return nil, fmt.Errorf("reading role policy %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing role policy %s: %w", path, err)
	}
	return &p, nil
}

// Resolver is the default Provider: per-document roles plus policy grants.
type Resolver struct {
	policy *Policy
}

// NewResolver creates a Resolver. A nil policy behaves as an empty one.
func NewResolver(policy *Policy) *Resolver {
	if policy == nil {
		policy = &Policy{}
	}
	return &Resolver{policy: policy}
}

// RolesFor returns the roles actor holds for doc. The system actor gets
// exactly RoleSystem; human actors never do.
func (r *Resolver) RolesFor(actor string, doc *types.Document) []types.Role {
	if actor == SystemActor {
		return []types.Role{types.RoleSystem}
	}

	var roles []types.Role
	add := func(role types.Role) {
		for _, have := range roles {
			if have == role {
				return
			}
		}
		roles = append(roles, role)
	}

	if doc != nil {
		if actor == doc.Author {
			add(types.RoleAuthor)
		}
		if doc.Reviewer != "" && actor == doc.Reviewer {
			add(types.RoleReviewer)
		}
		if doc.Approver != "" && actor == doc.Approver {
			add(types.RoleApprover)
		}
	}
	if contains(r.policy.Reviewers, actor) {
		add(types.RoleReviewer)
	}
	if contains(r.policy.Approvers, actor) {
		add(types.RoleApprover)
	}
	if contains(r.policy.Admins, actor) {
		add(types.RoleAdmin)
	}
	return roles
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
