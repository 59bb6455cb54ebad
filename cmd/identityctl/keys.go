package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/urfave/cli/v2"

	"ledgerid/internal/message"
	"ledgerid/internal/platform/crypto"
	"ledgerid/internal/vc"
	"ledgerid/pkg/domain"
	"ledgerid/pkg/platform/strings"
)

var keyFlag = &cli.StringFlag{
	Name:    "key",
	EnvVars: []string{"LEDGERID_KEY"},
	Usage:   "base58 Ed25519 seed of the signing key",
}

var trustedIssuersFlag = &cli.StringSliceFlag{
	Name:    "trusted-issuer",
	EnvVars: []string{"LEDGERID_TRUSTED_ISSUERS"},
	Usage:   "base58 public key allowed to change credential statuses (repeatable)",
}

// parseSeed decodes a base58 seed into a signing key.
func parseSeed(s string) (crypto.PrivateKey, error) {
	if s == "" {
		return nil, errors.New("signing key is required (--key or LEDGERID_KEY)")
	}
	seed, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return crypto.PrivateKeyFromSeed(seed)
}

// keyring is the set of trusted issuer keys. It can grow while a command
// runs, e.g. once the issuer DID has been resolved.
type keyring struct {
	mu   sync.RWMutex
	keys []message.PublicKey
}

func (k *keyring) add(keys ...crypto.PublicKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range keys {
		k.keys = append(k.keys, key)
	}
}

func (k *keyring) provider() vc.KeyProvider {
	return func(string) []message.PublicKey {
		k.mu.RLock()
		defer k.mu.RUnlock()
		return append([]message.PublicKey(nil), k.keys...)
	}
}

// issuerKeys trusts the --trusted-issuer keys plus extra.
func issuerKeys(c *cli.Context, extra ...crypto.PublicKey) (*keyring, error) {
	ring := &keyring{}
	for _, encoded := range strings.DedupeAndTrim(c.StringSlice("trusted-issuer")) {
		key, err := crypto.ParsePublicKeyBase58(encoded)
		if err != nil {
			return nil, fmt.Errorf("trusted issuer %q: %w", encoded, err)
		}
		ring.add(key)
	}
	ring.add(extra...)
	return ring, nil
}

type keyOutput struct {
	Seed      string `json:"seed"`
	PublicKey string `json:"public_key"`
	DID       string `json:"did,omitempty"`
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "generate an Ed25519 key and print its DID on the configured topic",
		Action: func(c *cli.Context) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			out := keyOutput{
				Seed:      base58.Encode(key.Seed()),
				PublicKey: key.Public().Base58(),
			}
			if cfg, err := loadConfig(c); err == nil && cfg.DIDTopic != "" {
				out.DID = domain.DeriveDID(cfg.Network, cfg.DIDTopic, key.Public()).String()
			}
			return printJSON(c, out)
		},
	}
}
