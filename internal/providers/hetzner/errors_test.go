package hetzner

import (
	"errors"
	"testing"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/pressdeck/engine/internal/providers"
	"github.com/stretchr/testify/require"
)

func TestClassifyNil(t *testing.T) {
	require.NoError(t, classify(nil))
}

func TestClassifyAPIErrors(t *testing.T) {
	cases := []struct {
		code hcloud.ErrorCode
		want providers.ErrorKind
	}{
		{hcloud.ErrorCodeUnauthorized, providers.ErrAuthInvalid},
		{hcloud.ErrorCodeForbidden, providers.ErrAuthInvalid},
		{hcloud.ErrorCodeRateLimitExceeded, providers.ErrRateLimited},
		{hcloud.ErrorCodeNotFound, providers.ErrNotFound},
		{hcloud.ErrorCodeConflict, providers.ErrConflict},
		{hcloud.ErrorCodeUniquenessError, providers.ErrConflict},
		{hcloud.ErrorCodeInvalidInput, providers.ErrConfigInvalid},
		{hcloud.ErrorCodeInvalidServerType, providers.ErrConfigInvalid},
		{hcloud.ErrorCodeLocked, providers.ErrTransient},
		{hcloud.ErrorCodeResourceUnavailable, providers.ErrTransient},
		{hcloud.ErrorCodeServiceError, providers.ErrTransient},
	}

	for _, tc := range cases {
		err := classify(hcloud.Error{Code: tc.code, Message: string(tc.code)})
		require.Equal(t, tc.want, providers.KindOf(err), "code %s", tc.code)
	}
}

func TestClassifyPlainErrorIsTransient(t *testing.T) {
	err := classify(errors.New("read tcp: connection reset by peer"))
	require.True(t, providers.IsKind(err, providers.ErrTransient))
}

func TestClassifyKeepsOriginalError(t *testing.T) {
	orig := hcloud.Error{Code: hcloud.ErrorCodeNotFound, Message: "server not found"}
	err := classify(orig)

	var hcErr hcloud.Error
	require.True(t, errors.As(err, &hcErr))
	require.Equal(t, hcloud.ErrorCodeNotFound, hcErr.Code)
}
