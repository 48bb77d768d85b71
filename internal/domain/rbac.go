package domain

// ResourceScope is the `resource_scope` predicate of an allowed
// resource criterion.
type ResourceScope string

const (
	ScopeSameOrg             ResourceScope = "same_org"
	ScopeSameOrgSelf         ResourceScope = "same_org:self"
	ScopeSameOrgAllowedTeam  ResourceScope = "same_org:allowed_team"
	ScopeAny                 ResourceScope = "any"
)

// ResourceType names the kind of resource an action targets.
type ResourceType string

const (
	ResourceMCPServer        ResourceType = "mcp_server"
	ResourceConfiguration    ResourceType = "mcp_server_configuration"
	ResourceConnectedAccount ResourceType = "connected_account"
	ResourceBundle           ResourceType = "mcp_server_bundle"
	ResourceOrganization     ResourceType = "organization"
)

// Action is a verb performed on a resource; RBAC permissions are keyed
// by (role, action).
type Action string

// AllowedResourceCriterion is one AND-of-predicates criterion. A
// permission is satisfied if ANY of its criteria match (OR across
// criteria).
type AllowedResourceCriterion struct {
	ResourceScope             ResourceScope              `json:"resource_scope,omitempty"`
	IsPublic                  *bool                      `json:"is_public,omitempty"`
	ConnectedAccountOwnership *ConnectedAccountOwnership `json:"connected_account_ownership,omitempty"`
	Ownership                 *ConnectedAccountOwnership `json:"ownership,omitempty"`
}

// Permission declares that a role may perform Action on ResourceType,
// subject to any one of AllowedResourceCriteria matching.
type Permission struct {
	Action                   Action                     `json:"action"`
	ResourceType             ResourceType               `json:"resource_type,omitempty"`
	AllowedResourceCriteria  []AllowedResourceCriterion `json:"allowed_resource_criteria,omitempty"`
}

// RolePermissions is the declarative ACL for one role: an ordered list
// of permissions. Duplicate Action declarations within one role are
// rejected at load (see rbac.LoadRole).
type RolePermissions struct {
	Role        OrgRole      `json:"role"`
	Permissions []Permission `json:"permissions"`
}

// Resource is the generic shape the RBAC resolver evaluates a
// criterion against. Only the fields relevant to the resource's type
// are populated by callers.
type Resource struct {
	Type                      ResourceType
	OrgID                     string
	OwnerUserID               string // same_org:self owner (connected account / bundle)
	IsPublic                  bool
	AllowedTeamIDs            []string
	ConnectedAccountOwnership ConnectedAccountOwnership
	Ownership                 ConnectedAccountOwnership
}
