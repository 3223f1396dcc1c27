package errs

import "errors"

var (
	ErrAuth              = errors.New("credential endpoint rejected request")
	ErrUnauthorized      = errors.New("authorization failed")
	ErrTransient         = errors.New("transient network failure")
	ErrNoEligibleSource  = errors.New("no eligible source rendition")
	ErrURLExpired        = errors.New("source url expired")
	ErrCheckpointCorrupt = errors.New("checkpoint file is corrupt")
)
