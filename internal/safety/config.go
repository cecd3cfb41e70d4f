package safety

import (
	"github.com/maruaican/Quick-Folder-Deleter/internal/config"
)

// FromConfig builds the validator for a running service: the configured
// allowed roots, and the configured protected paths plus the service's own
// directories
func FromConfig(cfg *config.Config) *Validator {
	extra := append(append([]string{}, cfg.ProtectedPaths...), cfg.ServiceDirs()...)
	v := NewValidator(cfg.AllowedRoots, extra)
	v.NFSTimeout = cfg.NFSProbeTimeout()
	return v
}
