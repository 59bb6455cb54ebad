package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"ledgerid/internal/did"
	"ledgerid/internal/platform/crypto"
	"ledgerid/internal/registry"
)

func didCommand() *cli.Command {
	return &cli.Command{
		Name:  "did",
		Usage: "register, update, delete and resolve DIDs",
		Subcommands: []*cli.Command{
			{
				Name:  "register",
				Usage: "publish a create message for the DID controlled by --key",
				Flags: []cli.Flag{keyFlag},
				Action: func(c *cli.Context) error {
					return publishDID(c, func(ctx context.Context, svc *registry.Service, key crypto.PrivateKey) (*registry.DIDReceipt, error) {
						return svc.RegisterDID(ctx, key)
					})
				},
			},
			{
				Name:  "update",
				Usage: "replace the DID document of the DID controlled by --key",
				Flags: []cli.Flag{
					keyFlag,
					&cli.PathFlag{
						Name:     "document",
						Required: true,
						Usage:    "path to the new DID document (JSON)",
					},
				},
				Action: func(c *cli.Context) error {
					raw, err := os.ReadFile(c.Path("document"))
					if err != nil {
						return fmt.Errorf("read did document: %w", err)
					}
					doc, err := did.ParseDocument(raw)
					if err != nil {
						return err
					}
					return publishDID(c, func(ctx context.Context, svc *registry.Service, key crypto.PrivateKey) (*registry.DIDReceipt, error) {
						return svc.UpdateDID(ctx, key, doc)
					})
				},
			},
			{
				Name:  "delete",
				Usage: "deactivate the DID controlled by --key",
				Flags: []cli.Flag{keyFlag},
				Action: func(c *cli.Context) error {
					return publishDID(c, func(ctx context.Context, svc *registry.Service, key crypto.PrivateKey) (*registry.DIDReceipt, error) {
						return svc.DeleteDID(ctx, key)
					})
				},
			},
			{
				Name:      "resolve",
				Usage:     "print the current state of a DID",
				ArgsUsage: "<did>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return errors.New("did argument is required")
					}
					rt, err := newRuntime(c, nil)
					if err != nil {
						return err
					}
					defer rt.close()

					return rt.run(c.Context, false, func(ctx context.Context) error {
						res, err := rt.service.ResolveDID(ctx, id)
						if err != nil {
							return err
						}
						return printJSON(c, toDIDOutput(res))
					})
				},
			},
		},
	}
}

type didPublishFunc func(ctx context.Context, svc *registry.Service, key crypto.PrivateKey) (*registry.DIDReceipt, error)

func publishDID(c *cli.Context, publish didPublishFunc) error {
	key, err := parseSeed(c.String("key"))
	if err != nil {
		return err
	}
	rt, err := newRuntime(c, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	return rt.run(c.Context, false, func(ctx context.Context) error {
		receipt, err := publish(ctx, rt.service, key)
		if err != nil {
			return err
		}
		out := toReceiptOutput(receipt.Receipt)
		out.DID = receipt.DID
		return printJSON(c, out)
	})
}
