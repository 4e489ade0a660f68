package provision

import "time"

// Fixed vendor parameters of the provisioning access point. These are
// properties of the device firmware, not of this agent, and are therefore
// constants rather than configuration.
const (
	// VendorSSIDPattern matches the SSID scheme of an unconfigured device's
	// access point, e.g. "ITEAD-1000011af2". Intentionally strict: a false
	// negative only delays provisioning, a false positive would burn a full
	// link lifecycle on a foreign network.
	VendorSSIDPattern = `^ITEAD-[0-9a-f]{10}$`

	// VendorPSK is the fixed pre-shared key of every provisioning AP.
	VendorPSK = "12345678"

	// DeviceBaseURL is the device's link-local HTTP endpoint, reachable only
	// while a provisioning link is active.
	DeviceBaseURL = "http://10.10.7.1"

	deviceIdentityPath  = "/device"
	deviceProvisionPath = "/ap"

	// linkProfilePrefix namespaces the temporary NetworkManager profiles so
	// they never collide with user connections. Profile names are derived
	// from the candidate SSID and thus reused across attempts.
	linkProfilePrefix = "provision-"
)

// Tunable defaults, overridable through the PROVISION_* environment
// variables in internal/config.
const (
	DefaultDeadline     = 120 * time.Second
	DefaultScanDelay    = 1 * time.Second
	DefaultHTTPTimeout  = 10 * time.Second
	DefaultNmcliTimeout = 15 * time.Second

	// DefaultActivateWait is how long `connection up` may block waiting for
	// the association. Kept below DefaultNmcliTimeout so the activation
	// fails through nmcli's own reporting, not a killed process.
	DefaultActivateWait = 10 * time.Second
)
