package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ledgerid/internal/audit"
	"ledgerid/internal/did"
	"ledgerid/internal/message"
	"ledgerid/internal/platform/crypto"
	"ledgerid/internal/registry/cache"
	"ledgerid/pkg/domain"
	"ledgerid/pkg/platform/sentinel"
)

// DIDFor returns the DID controlled by root on the service's DID topic.
func (s *Service) DIDFor(root crypto.PublicKey) domain.DID {
	return domain.DeriveDID(s.cfg.Network, s.cfg.DIDTopic, []byte(root))
}

// RegisterDID publishes a create message with a minimal document for the DID
// controlled by key.
func (s *Service) RegisterDID(ctx context.Context, key crypto.PrivateKey) (*DIDReceipt, error) {
	doc := did.NewDocument(s.DIDFor(key.Public()), key.Public())
	return s.publishDID(ctx, audit.ActionDIDRegistered, did.OperationCreate, key, doc)
}

// UpdateDID replaces the document of the DID controlled by key. The document
// must describe that DID and keep its root key.
func (s *Service) UpdateDID(ctx context.Context, key crypto.PrivateKey, doc *did.Document) (*DIDReceipt, error) {
	if doc == nil {
		return nil, errors.New("did document is required")
	}
	if want := s.DIDFor(key.Public()).String(); doc.ID != want {
		return nil, fmt.Errorf("did document %q is not controlled by the signing key (%s)", doc.ID, want)
	}
	return s.publishDID(ctx, audit.ActionDIDUpdated, did.OperationUpdate, key, doc)
}

// DeleteDID deactivates the DID controlled by key. Deactivation is final.
func (s *Service) DeleteDID(ctx context.Context, key crypto.PrivateKey) (*DIDReceipt, error) {
	doc := did.NewDocument(s.DIDFor(key.Public()), key.Public())
	return s.publishDID(ctx, audit.ActionDIDDeleted, did.OperationDelete, key, doc)
}

func (s *Service) publishDID(ctx context.Context, action audit.Action, op did.Operation, key crypto.PrivateKey, doc *did.Document) (*DIDReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "registry.PublishDID", trace.WithAttributes(
		attribute.String("did", doc.ID),
		attribute.String("operation", string(op)),
		attribute.String("topic_id", s.cfg.DIDTopic),
	))
	defer span.End()

	event := audit.Event{Action: action, Subject: doc.ID, TopicID: s.cfg.DIDTopic}
	receipt, err := s.submitDID(ctx, op, key, doc)
	if err != nil {
		failSpan(span, err)
		event.Outcome = audit.OutcomeFailed
		event.Detail = err.Error()
		if auditErr := s.emit(ctx, event); auditErr != nil {
			s.logger.ErrorContext(ctx, "failed to audit failed publish", "did", doc.ID, "error", auditErr)
		}
		return nil, err
	}
	s.cacheInvalidate(ctx, cache.NamespaceDID, doc.ID)

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
	s.logger.InfoContext(ctx, "did published",
		"did", doc.ID,
		"operation", op,
		"transaction_id", receipt.TransactionID,
		"confirmed", receipt.Confirmed,
	)
	return &DIDReceipt{Receipt: receipt, DID: doc.ID, Document: doc}, nil
}

func (s *Service) submitDID(ctx context.Context, op did.Operation, key crypto.PrivateKey, doc *did.Document) (Receipt, error) {
	raw, err := doc.Bytes()
	if err != nil {
		return Receipt{}, fmt.Errorf("serialize did document: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conf := newConfirmation[*did.Message]()
	tx := did.NewTransaction(s.cfg.DIDTopic, did.NewMessage(op, doc.ID, raw), key.Sign, conf.onConfirmed,
		s.options(message.WithErrorHandler(conf.onError))...)
	txID, err := tx.Execute(ctx, s.client)
	if err != nil {
		return Receipt{}, err
	}
	return awaitReceipt(ctx, conf, s.confirmTimeout, txID)
}

// ResolveDID returns the current state of id. It fails with
// sentinel.ErrNotFound when the DID has no accepted message.
func (s *Service) ResolveDID(ctx context.Context, id string) (*DIDResolution, error) {
	ctx, span := s.tracer.Start(ctx, "registry.ResolveDID", trace.WithAttributes(
		attribute.String("did", id),
	))
	defer span.End()

	res, err := s.resolveDID(ctx, id)
	event := audit.Event{Action: audit.ActionDIDResolved, Subject: id}
	if err != nil {
		failSpan(span, err)
		event.Outcome = audit.OutcomeFailed
		event.Detail = err.Error()
		s.track(ctx, event)
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("from_cache", res.FromCache),
		attribute.Bool("deactivated", res.Deactivated),
	)
	event.Detail = string(res.Operation)
	s.track(ctx, event)
	return res, nil
}

func (s *Service) resolveDID(ctx context.Context, id string) (*DIDResolution, error) {
	parsed, err := domain.ParseDID(id)
	if err != nil {
		return nil, err
	}
	decrypter := did.DecryptWith(s.decrypter)

	if snap := s.cacheGet(ctx, cache.NamespaceDID, id); snap != nil {
		if _, payload, err := openSnapshot(snap, decrypter); err == nil {
			res, err := didResolution(payload, snap.CreatedAt, snap.UpdatedAt, snap.SequenceNumber)
			if err == nil {
				res.FromCache = true
				return res, nil
			}
		}
		s.cacheInvalidate(ctx, cache.NamespaceDID, id)
	}

	resolver := did.NewResolver(parsed.TopicID, []string{id}, func(map[string]*did.Entry) {}, s.options()...)
	if err := resolver.Execute(ctx, s.client); err != nil {
		return nil, err
	}
	results, err := resolver.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", id, err)
	}
	entry := results[id]
	if entry == nil {
		return nil, sentinel.NotFound(id)
	}

	res, err := didResolution(entry.Payload, entry.CreatedAt(), entry.UpdatedAt(), entry.Envelope.SequenceNumber())
	if err != nil {
		return nil, err
	}
	if snap, err := snapshotOf(id, entry); err == nil {
		s.cacheSet(ctx, cache.NamespaceDID, snap)
	}
	return res, nil
}

func didResolution(m *did.Message, createdAt, updatedAt time.Time, seq uint64) (*DIDResolution, error) {
	raw, err := m.Document()
	if err != nil {
		return nil, err
	}
	doc, err := did.ParseDocument(raw)
	if err != nil {
		return nil, err
	}
	return &DIDResolution{
		DID:            m.DID,
		Document:       doc,
		Operation:      m.Operation,
		Deactivated:    m.Terminal(),
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		SequenceNumber: seq,
	}, nil
}
