package auth

const (
	ScopeOpenID       = "openid"
	ScopeProfile      = "profile"
	ScopeEmail        = "email"
	ScopeTenantsRead  = "tenants:read"
	ScopeTenantsAdmin = "tenants:admin"
)

// LoginScopes are requested by the browser login flow.
var LoginScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
}

// AllScopes is the full set of scopes API clients may hold.
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopeTenantsRead,
	ScopeTenantsAdmin,
}
