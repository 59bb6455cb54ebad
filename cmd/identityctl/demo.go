package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"ledgerid/internal/platform/crypto"
	"ledgerid/internal/platform/httpserver"
	"ledgerid/internal/platform/logger"
	"ledgerid/internal/registry"
	"ledgerid/internal/transport/memory"
	"ledgerid/internal/vc"
)

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "run a DID and credential lifecycle against an in-process topic",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "idle-timeout", Value: 200 * time.Millisecond, Usage: "resolver idle timeout"},
			&cli.BoolFlag{Name: "ops", Usage: "serve /metrics and /healthz while running"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.DIDTopic == "" {
				cfg.DIDTopic = "0.0.1001"
			}
			if cfg.VCTopic == "" {
				cfg.VCTopic = "0.0.1002"
			}
			cfg.Resolver.IdleTimeout = c.Duration("idle-timeout")

			keys := &keyring{}
			rt := &runtime{
				cfg:    cfg,
				logger: logger.NewWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format),
				client: memory.New(),
				checks: map[string]httpserver.HealthCheck{},
			}
			if err := rt.assemble(nil, nil, keys.provider()); err != nil {
				return err
			}
			defer rt.close()

			return rt.run(c.Context, c.Bool("ops"), func(ctx context.Context) error {
				return runDemo(ctx, rt.service, keys, c.App.Writer)
			})
		},
	}
}

func runDemo(ctx context.Context, svc *registry.Service, keys *keyring, w io.Writer) error {
	issuer, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	keys.add(issuer.Public())

	registered, err := svc.RegisterDID(ctx, issuer)
	if err != nil {
		return fmt.Errorf("register issuer: %w", err)
	}
	fmt.Fprintf(w, "registered %s (tx %s)\n", registered.DID, registered.TransactionID)

	resolved, err := svc.ResolveDID(ctx, registered.DID)
	if err != nil {
		return fmt.Errorf("resolve issuer: %w", err)
	}
	fmt.Fprintf(w, "resolved %s: %s, created %s\n", resolved.DID, resolved.Operation, resolved.CreatedAt.Format(time.RFC3339Nano))

	credential := vc.HashInput{
		ID:           "urn:uuid:6a1f3c2e-8d4b-4e0a-9f57-1c2d3e4f5a6b",
		Type:         []string{"VerifiableCredential", "UniversityDegreeCredential"},
		Issuer:       registered.DID,
		IssuanceDate: time.Now().UTC().Truncate(time.Second),
	}
	hash, err := credential.Hash()
	if err != nil {
		return err
	}

	steps := []struct {
		name    string
		publish func(context.Context, crypto.PrivateKey, string) (*registry.Receipt, error)
	}{
		{"issue", svc.IssueCredential},
		{"suspend", svc.SuspendCredential},
		{"resume", svc.ResumeCredential},
		{"revoke", svc.RevokeCredential},
	}
	for _, step := range steps {
		if _, err := step.publish(ctx, issuer, hash); err != nil {
			return fmt.Errorf("%s credential: %w", step.name, err)
		}
		status, err := svc.CredentialStatus(ctx, hash)
		if err != nil {
			return fmt.Errorf("credential status: %w", err)
		}
		verification, err := svc.VerifyCredential(ctx, credential)
		if err != nil {
			return fmt.Errorf("verify credential: %w", err)
		}
		fmt.Fprintf(w, "%-8s status=%s valid=%t\n", step.name, status.Status, verification.Valid)
	}

	if _, err := svc.DeleteDID(ctx, issuer); err != nil {
		return fmt.Errorf("delete issuer: %w", err)
	}
	resolved, err = svc.ResolveDID(ctx, registered.DID)
	if err != nil {
		return fmt.Errorf("resolve issuer: %w", err)
	}
	fmt.Fprintf(w, "deleted %s: deactivated=%t\n", resolved.DID, resolved.Deactivated)
	return nil
}
