package enums

// ActorRole is the role carried in access tokens.
type ActorRole string

const (
	ActorRoleCustomer ActorRole = "customer"
	ActorRoleSeller   ActorRole = "seller"
	ActorRoleAdmin    ActorRole = "admin"
	// ActorRoleSystem is used by internal callers such as the order ledger.
	ActorRoleSystem ActorRole = "system"
)

var actorRoles = members(ActorRoleCustomer, ActorRoleSeller, ActorRoleAdmin, ActorRoleSystem)

func (r ActorRole) IsValid() bool { return actorRoles.has(r) }

func ParseActorRole(value string) (ActorRole, error) {
	return actorRoles.parse("actor role", value)
}
