package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"ledgerid/internal/platform/crypto"
	"ledgerid/internal/registry"
	"ledgerid/internal/vc"
	"ledgerid/pkg/platform/sentinel"
)

type statusPublishFunc func(ctx context.Context, svc *registry.Service, issuer crypto.PrivateKey, hash string) (*registry.Receipt, error)

// credentialFlags returns fresh flag values per command; TimestampFlag keeps
// its parsed value on the flag itself.
func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "id", Required: true, Usage: "credential id"},
		&cli.StringFlag{Name: "issuer", Required: true, Usage: "issuer DID"},
		&cli.TimestampFlag{Name: "issuance-date", Required: true, Layout: time.RFC3339, Usage: "issuance date (RFC 3339)"},
		&cli.StringSliceFlag{Name: "type", Value: cli.NewStringSlice("VerifiableCredential"), Usage: "credential type (repeatable)"},
	}
}

func credentialFromFlags(c *cli.Context) vc.HashInput {
	var issued time.Time
	if ts := c.Timestamp("issuance-date"); ts != nil {
		issued = ts.UTC()
	}
	return vc.HashInput{
		ID:           c.String("id"),
		Type:         c.StringSlice("type"),
		Issuer:       c.String("issuer"),
		IssuanceDate: issued,
	}
}

func vcCommand() *cli.Command {
	status := func(name, usage string, publish statusPublishFunc) *cli.Command {
		return &cli.Command{
			Name:      name,
			Usage:     usage,
			ArgsUsage: "<credential hash>",
			Flags:     []cli.Flag{keyFlag, trustedIssuersFlag},
			Action: func(c *cli.Context) error {
				return publishStatus(c, publish)
			},
		}
	}

	return &cli.Command{
		Name:  "vc",
		Usage: "manage verifiable credential statuses",
		Subcommands: []*cli.Command{
			{
				Name:  "hash",
				Usage: "print the status-topic hash of a credential",
				Flags: credentialFlags(),
				Action: func(c *cli.Context) error {
					hash, err := credentialFromFlags(c).Hash()
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(c.App.Writer, hash)
					return err
				},
			},
			status("issue", "publish an issue message signed by --key", func(ctx context.Context, svc *registry.Service, issuer crypto.PrivateKey, hash string) (*registry.Receipt, error) {
				return svc.IssueCredential(ctx, issuer, hash)
			}),
			status("suspend", "suspend a credential", func(ctx context.Context, svc *registry.Service, issuer crypto.PrivateKey, hash string) (*registry.Receipt, error) {
				return svc.SuspendCredential(ctx, issuer, hash)
			}),
			status("resume", "resume a suspended credential", func(ctx context.Context, svc *registry.Service, issuer crypto.PrivateKey, hash string) (*registry.Receipt, error) {
				return svc.ResumeCredential(ctx, issuer, hash)
			}),
			status("revoke", "revoke a credential for good", func(ctx context.Context, svc *registry.Service, issuer crypto.PrivateKey, hash string) (*registry.Receipt, error) {
				return svc.RevokeCredential(ctx, issuer, hash)
			}),
			{
				Name:      "status",
				Usage:     "print the current status of a credential",
				ArgsUsage: "<credential hash>",
				Flags:     []cli.Flag{trustedIssuersFlag},
				Action: func(c *cli.Context) error {
					hash := c.Args().First()
					if hash == "" {
						return errors.New("credential hash argument is required")
					}
					keys, err := issuerKeys(c)
					if err != nil {
						return err
					}
					rt, err := newRuntime(c, keys.provider())
					if err != nil {
						return err
					}
					defer rt.close()

					return rt.run(c.Context, false, func(ctx context.Context) error {
						res, err := rt.service.CredentialStatus(ctx, hash)
						if err != nil {
							return err
						}
						return printJSON(c, toStatusOutput(res))
					})
				},
			},
			{
				Name:  "verify",
				Usage: "check a credential against its issuer DID and status",
				Flags: append([]cli.Flag{trustedIssuersFlag}, credentialFlags()...),
				Action: func(c *cli.Context) error {
					return verifyCredential(c)
				},
			},
		},
	}
}

func publishStatus(c *cli.Context, publish statusPublishFunc) error {
	hash := c.Args().First()
	if hash == "" {
		return errors.New("credential hash argument is required")
	}
	key, err := parseSeed(c.String("key"))
	if err != nil {
		return err
	}
	keys, err := issuerKeys(c, key.Public())
	if err != nil {
		return err
	}
	rt, err := newRuntime(c, keys.provider())
	if err != nil {
		return err
	}
	defer rt.close()

	return rt.run(c.Context, false, func(ctx context.Context) error {
		receipt, err := publish(ctx, rt.service, key, hash)
		if err != nil {
			return err
		}
		out := toReceiptOutput(*receipt)
		out.CredentialHash = hash
		return printJSON(c, out)
	})
}

// verifyCredential trusts the issuer DID's root key for the status lookup in
// addition to any --trusted-issuer keys.
func verifyCredential(c *cli.Context) error {
	credential := credentialFromFlags(c)
	keys, err := issuerKeys(c)
	if err != nil {
		return err
	}
	rt, err := newRuntime(c, keys.provider())
	if err != nil {
		return err
	}
	defer rt.close()

	return rt.run(c.Context, false, func(ctx context.Context) error {
		result, err := verifyWithIssuerKey(ctx, rt.service, keys, credential)
		if err != nil {
			return err
		}
		return printJSON(c, toVerificationOutput(result))
	})
}

func verifyWithIssuerKey(ctx context.Context, svc *registry.Service, keys *keyring, credential vc.HashInput) (*registry.Verification, error) {
	issuer, err := svc.ResolveDID(ctx, credential.Issuer)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if root, err := issuer.Document.RootKey(); err == nil {
			keys.add(root)
		}
	}
	return svc.VerifyCredential(ctx, credential)
}
