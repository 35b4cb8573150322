package hetzner

import (
	"errors"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/pressdeck/engine/internal/providers"
)

// classify maps an hcloud API error onto the shared provider taxonomy.
// Anything that is not an hcloud.Error (timeouts, DNS failures, dropped
// connections) counts as transient: the observed state gets re-queried on
// the next attempt instead of being guessed at.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var hcErr hcloud.Error
	if !errors.As(err, &hcErr) {
		return providers.NewError(providers.ErrTransient, err)
	}

	switch hcErr.Code {
	case hcloud.ErrorCodeUnauthorized, hcloud.ErrorCodeForbidden:
		return providers.NewError(providers.ErrAuthInvalid, err)
	case hcloud.ErrorCodeRateLimitExceeded:
		return providers.NewError(providers.ErrRateLimited, err)
	case hcloud.ErrorCodeNotFound:
		return providers.NewError(providers.ErrNotFound, err)
	case hcloud.ErrorCodeConflict, hcloud.ErrorCodeUniquenessError:
		return providers.NewError(providers.ErrConflict, err)
	case hcloud.ErrorCodeInvalidInput, hcloud.ErrorCodeInvalidServerType:
		return providers.NewError(providers.ErrConfigInvalid, err)
	case hcloud.ErrorCodeLocked, hcloud.ErrorCodeResourceLocked, hcloud.ErrorCodeResourceUnavailable:
		// Locked resources unlock once the running action completes.
		return providers.NewError(providers.ErrTransient, err)
	default:
		return providers.NewError(providers.ErrTransient, err)
	}
}
