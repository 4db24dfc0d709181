// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
	SecurityAdmin                       // Access token with admin role required
)

// RouteSecurityConfig maps route names to their required security level
var RouteSecurityConfig = map[string]SecurityLevel{
	// Auth - Public
	"auth.register": SecurityPublic,
	"auth.login":    SecurityPublic,
	"healthz":       SecurityPublic,
	"metrics":       SecurityPublic,

	// Leads - Access Protected
	"leads.list":     SecurityAccess,
	"leads.purchase": SecurityAccess,

	// Me - Access Protected
	"me.balance":            SecurityAccess,
	"me.purchases":          SecurityAccess,
	"me.ledger":             SecurityAccess,
	"me.notifications":      SecurityAccess,
	"me.notifications.read": SecurityAccess,

	// Admin - Admin Protected
	"admin.leads.create":     SecurityAdmin,
	"admin.leads.update":     SecurityAdmin,
	"admin.deposits.create":  SecurityAdmin,
	"admin.purchases.refund": SecurityAdmin,
	"admin.accounts.ledger":  SecurityAdmin,
	"admin.reconcile":        SecurityAdmin,
}

// GetSecurityLevel returns the security level for a given route name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := RouteSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown routes
	return SecurityAdmin
}
