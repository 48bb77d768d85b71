// Package rbac evaluates the declarative ACL described in
// domain.RolePermissions against a concrete domain.Resource.
package rbac

import (
	"fmt"

	"mcpgate/internal/domain"
)

// DefaultPolicies is the built-in ACL: two fixed roles, admin and
// member, per the OrgRole enum. There is no custom-role storage —
// spec scope is exactly these two roles.
var DefaultPolicies = map[domain.OrgRole]domain.RolePermissions{
	domain.OrgRoleAdmin: {
		Role: domain.OrgRoleAdmin,
		Permissions: []domain.Permission{
			{Action: "manage", ResourceType: domain.ResourceOrganization,
				AllowedResourceCriteria: []domain.AllowedResourceCriterion{{ResourceScope: domain.ScopeSameOrg}}},
			{Action: "manage", ResourceType: domain.ResourceMCPServer,
				AllowedResourceCriteria: []domain.AllowedResourceCriterion{{ResourceScope: domain.ScopeSameOrg}}},
			{Action: "manage", ResourceType: domain.ResourceConfiguration,
				AllowedResourceCriteria: []domain.AllowedResourceCriterion{{ResourceScope: domain.ScopeSameOrg}}},
			{Action: "manage", ResourceType: domain.ResourceBundle,
				AllowedResourceCriteria: []domain.AllowedResourceCriterion{{ResourceScope: domain.ScopeSameOrg}}},
			{Action: "manage", ResourceType: domain.ResourceConnectedAccount,
				AllowedResourceCriteria: []domain.AllowedResourceCriterion{{ResourceScope: domain.ScopeSameOrg}}},
		},
	},
	domain.OrgRoleMember: {
		Role: domain.OrgRoleMember,
		Permissions: []domain.Permission{
			{Action: "read", ResourceType: domain.ResourceMCPServer,
				AllowedResourceCriteria: []domain.AllowedResourceCriterion{{ResourceScope: domain.ScopeSameOrg}}},
			{Action: "read", ResourceType: domain.ResourceConfiguration,
				AllowedResourceCriteria: []domain.AllowedResourceCriterion{{ResourceScope: domain.ScopeSameOrgAllowedTeam}}},
			{Action: "use", ResourceType: domain.ResourceConfiguration,
				AllowedResourceCriteria: []domain.AllowedResourceCriterion{{ResourceScope: domain.ScopeSameOrgAllowedTeam}}},
			{Action: "manage", ResourceType: domain.ResourceBundle,
				AllowedResourceCriteria: []domain.AllowedResourceCriterion{{ResourceScope: domain.ScopeSameOrgSelf}}},
			{Action: "manage", ResourceType: domain.ResourceConnectedAccount,
				AllowedResourceCriteria: []domain.AllowedResourceCriterion{
					{ResourceScope: domain.ScopeSameOrgSelf, ConnectedAccountOwnership: ownership(domain.OwnershipIndividual)},
					{ResourceScope: domain.ScopeSameOrgAllowedTeam, ConnectedAccountOwnership: ownership(domain.OwnershipShared)},
				}},
		},
	},
}

func ownership(o domain.ConnectedAccountOwnership) *domain.ConnectedAccountOwnership { return &o }

type actionResource struct {
	action domain.Action
	typ    domain.ResourceType
}

// LoadRole validates a RolePermissions declaration, rejecting duplicate
// (action, resource type) entries within the same role — the
// declarative ACL is keyed by that pair, and a duplicate would make
// resolution order-dependent.
func LoadRole(rp domain.RolePermissions) (domain.RolePermissions, error) {
	seen := make(map[actionResource]struct{}, len(rp.Permissions))
	for _, p := range rp.Permissions {
		key := actionResource{p.Action, p.ResourceType}
		if _, ok := seen[key]; ok {
			return domain.RolePermissions{}, fmt.Errorf("rbac: duplicate action %q for resource %q in role %q", p.Action, p.ResourceType, rp.Role)
		}
		seen[key] = struct{}{}
	}
	return rp, nil
}

func init() {
	for role, rp := range DefaultPolicies {
		if _, err := LoadRole(rp); err != nil {
			panic(err)
		}
		_ = role
	}
}

// Actor is the identity an Allow decision is evaluated for.
type Actor struct {
	UserID         string
	OrgID          string
	Role           domain.OrgRole
	MemberTeamIDs  []string // teams the actor belongs to, within OrgID
}

// Allow reports whether actor may perform action on resource,
// evaluating policies (normally rbac.DefaultPolicies).
func Allow(policies map[domain.OrgRole]domain.RolePermissions, actor Actor, action domain.Action, resource domain.Resource) bool {
	rp, ok := policies[actor.Role]
	if !ok {
		return false
	}
	for _, perm := range rp.Permissions {
		if perm.Action != action || perm.ResourceType != resource.Type {
			continue
		}
		for _, crit := range perm.AllowedResourceCriteria {
			if matches(crit, actor, resource) {
				return true
			}
		}
	}
	return false
}

// matches evaluates one criterion as an AND of its populated
// predicates against actor/resource.
func matches(crit domain.AllowedResourceCriterion, actor Actor, resource domain.Resource) bool {
	switch crit.ResourceScope {
	case domain.ScopeSameOrg:
		if actor.OrgID != resource.OrgID {
			return false
		}
	case domain.ScopeSameOrgSelf:
		if actor.OrgID != resource.OrgID || actor.UserID != resource.OwnerUserID {
			return false
		}
	case domain.ScopeSameOrgAllowedTeam:
		if actor.OrgID != resource.OrgID {
			return false
		}
		if !teamsOverlap(actor.MemberTeamIDs, resource.AllowedTeamIDs) {
			return false
		}
	case domain.ScopeAny:
		// no constraint
	default:
		return false
	}

	if crit.IsPublic != nil && *crit.IsPublic != resource.IsPublic {
		return false
	}
	if crit.ConnectedAccountOwnership != nil && *crit.ConnectedAccountOwnership != resource.ConnectedAccountOwnership {
		return false
	}
	if crit.Ownership != nil && *crit.Ownership != resource.Ownership {
		return false
	}
	return true
}

func teamsOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
