package sentinel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHelpersKeepSentinelIdentity(t *testing.T) {
	err := NotFound("did:hedera:testnet:abc_0.0.1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "not found: did:hedera:testnet:abc_0.0.1")

	cause := errors.New("connection refused")
	err = Unavailable("read cached snapshot", cause)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "unavailable: read cached snapshot: connection refused")
}
