package enums

// UserRole is the coarse role carried in access tokens.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	// UserRoleAdmin manages fulfillment and confirms cash-on-delivery.
	UserRoleAdmin UserRole = "admin"
)

var userRoles = newValueSet("user role", UserRoleCustomer, UserRoleAdmin)

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool { return userRoles.contains(r) }

func ParseUserRole(value string) (UserRole, error) {
	return userRoles.parse(value)
}
