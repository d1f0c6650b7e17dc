// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
)

// EndpointSecurityConfig maps route names to their required security level.
// Route names are the names registered on the HTTP router.
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Operational - Public
	"healthz": SecurityPublic,
	"metrics": SecurityPublic,

	// Bookings - Access Protected
	"createBooking":       SecurityAccess,
	"listBookings":        SecurityAccess,
	"listMyBookings":      SecurityAccess,
	"listOverdueBookings": SecurityAccess,
	"getAvailability":     SecurityAccess,
	"getBooking":          SecurityAccess,
	"updateBooking":       SecurityAccess,
	"confirmBooking":      SecurityAccess,
	"rejectBooking":       SecurityAccess,
	"confirmItemsForOrg":  SecurityAccess,
	"rejectItemsForOrg":   SecurityAccess,
	"updatePaymentStatus": SecurityAccess,
	"cancelBooking":       SecurityAccess,
	"deleteBooking":       SecurityAccess,
	"confirmPickup":       SecurityAccess,
	"returnItems":         SecurityAccess,
	"confirmPickupForOrg": SecurityAccess,
	"returnItemsForOrg":   SecurityAccess,
	"cancelItemsForOrg":   SecurityAccess,
}

// GetSecurityLevel returns the level for a route. Unknown routes require an
// access token.
func GetSecurityLevel(route string) SecurityLevel {
	if level, ok := EndpointSecurityConfig[route]; ok {
		return level
	}
	return SecurityAccess
}
