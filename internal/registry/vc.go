package registry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ledgerid/internal/audit"
	"ledgerid/internal/message"
	"ledgerid/internal/platform/crypto"
	"ledgerid/internal/registry/cache"
	"ledgerid/internal/vc"
)

// IssueCredential publishes an issue message for credentialHash signed by
// issuer.
func (s *Service) IssueCredential(ctx context.Context, issuer crypto.PrivateKey, credentialHash string) (*Receipt, error) {
	return s.publishStatus(ctx, audit.ActionCredentialIssued, vc.OperationIssue, issuer, credentialHash)
}

func (s *Service) SuspendCredential(ctx context.Context, issuer crypto.PrivateKey, credentialHash string) (*Receipt, error) {
	return s.publishStatus(ctx, audit.ActionCredentialSuspended, vc.OperationSuspend, issuer, credentialHash)
}

func (s *Service) ResumeCredential(ctx context.Context, issuer crypto.PrivateKey, credentialHash string) (*Receipt, error) {
	return s.publishStatus(ctx, audit.ActionCredentialResumed, vc.OperationResume, issuer, credentialHash)
}

// RevokeCredential revokes credentialHash. Revocation is final.
func (s *Service) RevokeCredential(ctx context.Context, issuer crypto.PrivateKey, credentialHash string) (*Receipt, error) {
	return s.publishStatus(ctx, audit.ActionCredentialRevoked, vc.OperationRevoke, issuer, credentialHash)
}

func (s *Service) publishStatus(ctx context.Context, action audit.Action, op vc.Operation, issuer crypto.PrivateKey, credentialHash string) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "registry.PublishStatus", trace.WithAttributes(
		attribute.String("credential_hash", credentialHash),
		attribute.String("operation", string(op)),
		attribute.String("topic_id", s.cfg.VCTopic),
	))
	defer span.End()

	event := audit.Event{Action: action, Subject: credentialHash, TopicID: s.cfg.VCTopic}
	receipt, err := s.submitStatus(ctx, op, issuer, credentialHash)
	if err != nil {
		failSpan(span, err)
		event.Outcome = audit.OutcomeFailed
		event.Detail = err.Error()
		if auditErr := s.emit(ctx, event); auditErr != nil {
			s.logger.ErrorContext(ctx, "failed to audit failed publish", "credential_hash", credentialHash, "error", auditErr)
		}
		return nil, err
	}
	s.cacheInvalidate(ctx, cache.NamespaceVC, credentialHash)

	event.TransactionID = receipt.TransactionID
	event.Outcome = audit.OutcomeSucceeded
	if !receipt.Confirmed {
		event.Detail = "unconfirmed"
	}
	if err := s.emit(ctx, event); err != nil {
		failSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("transaction_id", receipt.TransactionID))
	s.logger.InfoContext(ctx, "credential status published",
		"credential_hash", credentialHash,
		"operation", op,
		"transaction_id", receipt.TransactionID,
		"confirmed", receipt.Confirmed,
	)
	return &receipt, nil
}

func (s *Service) submitStatus(ctx context.Context, op vc.Operation, issuer crypto.PrivateKey, credentialHash string) (Receipt, error) {
	if credentialHash == "" {
		return Receipt{}, errors.New("credential hash is required")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conf := newConfirmation[*vc.StatusMessage]()
	tx := vc.NewTransaction(s.cfg.VCTopic, vc.NewStatusMessage(op, credentialHash), issuer.Sign, s.issuerKeys, conf.onConfirmed,
		s.options(message.WithErrorHandler(conf.onError))...)
	txID, err := tx.Execute(ctx, s.client)
	if err != nil {
		return Receipt{}, err
	}
	return awaitReceipt(ctx, conf, s.confirmTimeout, txID)
}

// CredentialStatus returns the current status of credentialHash. A
// credential without any accepted message is vc.StatusUnknown.
func (s *Service) CredentialStatus(ctx context.Context, credentialHash string) (*StatusResolution, error) {
	ctx, span := s.tracer.Start(ctx, "registry.CredentialStatus", trace.WithAttributes(
		attribute.String("credential_hash", credentialHash),
	))
	defer span.End()

	res, err := s.resolveStatus(ctx, credentialHash)
	event := audit.Event{Action: audit.ActionStatusChecked, Subject: credentialHash, TopicID: s.cfg.VCTopic}
	if err != nil {
		failSpan(span, err)
		event.Outcome = audit.OutcomeFailed
		event.Detail = err.Error()
		s.track(ctx, event)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Bool("from_cache", res.FromCache),
	)
	event.Detail = string(res.Status)
	s.track(ctx, event)
	return res, nil
}

func (s *Service) resolveStatus(ctx context.Context, credentialHash string) (*StatusResolution, error) {
	if credentialHash == "" {
		return nil, errors.New("credential hash is required")
	}
	decrypter := vc.DecryptWith(s.decrypter)

	if snap := s.cacheGet(ctx, cache.NamespaceVC, credentialHash); snap != nil {
		if env, payload, err := openSnapshot(snap, decrypter); err == nil {
			return &StatusResolution{
				CredentialHash: credentialHash,
				Status:         vc.StatusOf(payload.Operation),
				Operation:      payload.Operation,
				IssuedAt:       snap.CreatedAt,
				UpdatedAt:      snap.UpdatedAt,
				SequenceNumber: snap.SequenceNumber,
				FromCache:      true,
				envelope:       env,
			}, nil
		}
		s.cacheInvalidate(ctx, cache.NamespaceVC, credentialHash)
	}

	resolver := vc.NewResolver(s.cfg.VCTopic, []string{credentialHash}, s.issuerKeys, func(map[string]*vc.Entry) {}, s.options()...)
	if err := resolver.Execute(ctx, s.client); err != nil {
		return nil, err
	}
	results, err := resolver.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve status of %s: %w", credentialHash, err)
	}

	entry := results[credentialHash]
	res := &StatusResolution{
		CredentialHash: credentialHash,
		Status:         vc.EntryStatus(entry),
	}
	if entry == nil {
		return res, nil
	}
	res.Operation = entry.Payload.Operation
	res.IssuedAt = entry.CreatedAt()
	res.UpdatedAt = entry.UpdatedAt()
	res.SequenceNumber = entry.Envelope.SequenceNumber()
	res.envelope = entry.Envelope

	if snap, err := snapshotOf(credentialHash, entry); err == nil {
		s.cacheSet(ctx, cache.NamespaceVC, snap)
	}
	return res, nil
}
