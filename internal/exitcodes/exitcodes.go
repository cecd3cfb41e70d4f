package exitcodes

// Exit codes for folder-deleter commands
// These codes form the operational contract with scripts and operators
const (
	Success         = 0 // Target removed completely
	InvalidConfig   = 2 // Configuration file invalid or missing
	SafetyViolation = 3 // Target rejected before any deletion
	RuntimeError    = 4 // Runtime error during execution
	Incomplete      = 5 // Deletion ran but the target still exists
)
