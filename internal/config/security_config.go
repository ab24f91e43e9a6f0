// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic  SecurityLevel = iota // No authentication
	SecurityWebhook                      // Gateway shared secret required
	SecurityAccess                       // Any valid access token
	SecurityStaff                        // Access token with the STAFF role
)

// EndpointSecurityConfig maps route names to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Probes
	"Health": SecurityPublic,

	// Gateway callbacks
	"AcknowledgePayment": SecurityWebhook,

	// Reservations - Access Protected
	"CreateReservation":       SecurityAccess,
	"GetReservation":          SecurityAccess,
	"CancelReservation":       SecurityAccess,
	"RescheduleReservation":   SecurityAccess,
	"CopyReservation":         SecurityAccess,
	"RequestPayment":          SecurityAccess,
	"ListCustomerReservation": SecurityAccess,

	// Counter operations - Staff only
	"PickUpReservation":     SecurityStaff,
	"FinalizeReservation":   SecurityStaff,
	"VehicleOccupancy":      SecurityStaff,
	"InitializeEligibility": SecurityStaff,

	// Tracking
	"RecordTrackingPoint": SecurityStaff,
	"GetTrackingSession":  SecurityAccess,
}

// GetSecurityLevel returns the security level for a given route
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityStaff
}
