package domain

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Method is the DID method name used for identifiers anchored on a consensus topic.
const Method = "hedera"

// RootKeyFragment names the verification method that controls a DID document.
const RootKeyFragment = "did-root-key"

const maxDIDLength = 512

// ErrInvalidDID is returned (wrapped) for any identifier that does not parse.
var ErrInvalidDID = errors.New("invalid did")

// DID is a parsed decentralized identifier of the form
// did:hedera:<network>:<base58(sha256(root key))>_<topic id>.
type DID struct {
	Network  string
	IDString string
	TopicID  string
}

// DeriveDID builds the identifier controlled by rootKey and anchored on topicID.
func DeriveDID(network, topicID string, rootKey []byte) DID {
	return DID{
		Network:  network,
		IDString: IDStringFromKey(rootKey),
		TopicID:  topicID,
	}
}

// IDStringFromKey returns the method-specific id for a root public key.
func IDStringFromKey(rootKey []byte) string {
	sum := sha256.Sum256(rootKey)
	return base58.Encode(sum[:])
}

// ParseDID validates and splits a DID string.
func ParseDID(s string) (DID, error) {
	if s == "" {
		return DID{}, fmt.Errorf("%w: empty", ErrInvalidDID)
	}
	if len(s) > maxDIDLength {
		return DID{}, fmt.Errorf("%w: too long", ErrInvalidDID)
	}
	parts := strings.Split(s, ":")
	if len(parts) != 4 || parts[0] != "did" {
		return DID{}, fmt.Errorf("%w: expected did:%s:<network>:<id>", ErrInvalidDID, Method)
	}
	if parts[1] != Method {
		return DID{}, fmt.Errorf("%w: unsupported method %q", ErrInvalidDID, parts[1])
	}
	network := parts[2]
	if !isToken(network) {
		return DID{}, fmt.Errorf("%w: bad network", ErrInvalidDID)
	}
	idString, topicID, ok := strings.Cut(parts[3], "_")
	if !ok || idString == "" || topicID == "" {
		return DID{}, fmt.Errorf("%w: missing topic id", ErrInvalidDID)
	}
	decoded, err := base58.Decode(idString)
	if err != nil || len(decoded) != sha256.Size {
		return DID{}, fmt.Errorf("%w: malformed id string", ErrInvalidDID)
	}
	if !isToken(topicID) {
		return DID{}, fmt.Errorf("%w: bad topic id", ErrInvalidDID)
	}
	return DID{Network: network, IDString: idString, TopicID: topicID}, nil
}

// String formats the DID.
func (d DID) String() string {
	return fmt.Sprintf("did:%s:%s:%s_%s", Method, d.Network, d.IDString, d.TopicID)
}

// RootKeyID is the verification method id of the DID's root key.
func (d DID) RootKeyID() string {
	return d.String() + "#" + RootKeyFragment
}

// ControlledBy reports whether rootKey derives this DID's id string.
func (d DID) ControlledBy(rootKey []byte) bool {
	return len(rootKey) > 0 && IDStringFromKey(rootKey) == d.IDString
}

// isToken accepts topic names and network names: ASCII letters, digits, '.', '-', '_'.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
