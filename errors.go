package provision

import "github.com/pkg/errors"

// Failure taxonomy of one provisioning run. Per-candidate failures
// (ErrLink*, ErrIdentityFetch, ErrProvisioningSend) are recovered locally
// and recorded as outcomes; only ErrPrecondition terminates the process.
// All of them are classifiable with errors.Is after wrapping.
var (
	ErrLinkCreate       = errors.New("link create failed")
	ErrLinkActivate     = errors.New("link activate failed")
	ErrLinkDeactivate   = errors.New("link deactivate failed")
	ErrLinkDestroy      = errors.New("link destroy failed")
	ErrIdentityFetch    = errors.New("device identity fetch failed")
	ErrProvisioningSend = errors.New("provisioning send failed")
	ErrPrecondition     = errors.New("precondition failed")
)
