package registry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"ledgerid/internal/audit"
	"ledgerid/internal/message"
	"ledgerid/internal/vc"
	"ledgerid/pkg/platform/sentinel"
)

// VerifyCredential resolves the issuer DID and the credential status in
// parallel and checks that the issuer is active, the credential is active
// and its current status was signed by the issuer's root key.
func (s *Service) VerifyCredential(ctx context.Context, credential vc.HashInput) (*Verification, error) {
	hash, err := credential.Hash()
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "registry.VerifyCredential", trace.WithAttributes(
		attribute.String("credential_hash", hash),
		attribute.String("issuer", credential.Issuer),
	))
	defer span.End()

	result := &Verification{CredentialHash: hash}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		issuer, err := s.resolveDID(gctx, credential.Issuer)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("resolve issuer: %w", err)
		}
		result.Issuer = issuer
		return nil
	})
	g.Go(func() error {
		status, err := s.resolveStatus(gctx, hash)
		if err != nil {
			return fmt.Errorf("resolve status: %w", err)
		}
		result.Status = status
		return nil
	})
	if err := g.Wait(); err != nil {
		failSpan(span, err)
		s.track(ctx, audit.Event{
			Action:  audit.ActionCredentialVerified,
			Subject: hash,
			Outcome: audit.OutcomeFailed,
			Detail:  err.Error(),
		})
		return nil, err
	}

	result.Reasons = verificationReasons(result)
	result.Valid = len(result.Reasons) == 0
	span.SetAttributes(attribute.Bool("valid", result.Valid))

	event := audit.Event{Action: audit.ActionCredentialVerified, Subject: hash, TopicID: s.cfg.VCTopic}
	if result.Valid {
		event.Outcome = audit.OutcomeSucceeded
	} else {
		event.Outcome = audit.OutcomeFailed
		event.Detail = result.Reasons[0]
	}
	s.track(ctx, event)
	return result, nil
}

func verificationReasons(v *Verification) []string {
	var reasons []string
	switch {
	case v.Issuer == nil:
		reasons = append(reasons, "issuer did is not found")
	case v.Issuer.Deactivated:
		reasons = append(reasons, "issuer did is deactivated")
	}
	if v.Status.Status != vc.StatusActive {
		reasons = append(reasons, fmt.Sprintf("credential is %s", v.Status.Status))
	}
	if v.Issuer != nil && v.Status.envelope != nil {
		root, err := v.Issuer.Document.RootKey()
		if err != nil {
			reasons = append(reasons, "issuer did document has no root key")
		} else if !v.Status.envelope.IsSignatureValid(func(*vc.Envelope) message.PublicKey { return root }) {
			reasons = append(reasons, "credential status was not signed by the issuer")
		}
	}
	return reasons
}
