package message

import (
	"time"
)

// Entry is the resolved state of one key: the best envelope accepted so far
// together with its opened payload.
type Entry[T Payload] struct {
	Envelope *Envelope[T]
	Payload  T

	updatedAt    time.Time
	firstInitial time.Time
}

// UpdatedAt is the consensus timestamp of the accepted envelope.
func (e *Entry[T]) UpdatedAt() time.Time {
	return e.updatedAt
}

// CreatedAt is the consensus timestamp of the earliest initial operation
// (create, issue) for the key. It is zero when no initial operation was seen,
// or when every one of them came after the terminal operation that closed the key.
func (e *Entry[T]) CreatedAt() time.Time {
	if e.firstInitial.IsZero() {
		return time.Time{}
	}
	if e.Payload.Terminal() && e.firstInitial.After(e.updatedAt) {
		return time.Time{}
	}
	return e.firstInitial
}

// ConflictRule decides whether candidate replaces existing. existing is nil
// when the key has no accepted state yet.
type ConflictRule[T Payload] func(existing *Entry[T], candidate *Envelope[T], payload T) bool

// Supersedes is the shared conflict rule:
//   - a terminal state is a one-way latch; non-terminal candidates never replace it
//   - a terminal candidate replaces any non-terminal state regardless of time
//   - between two terminal states the earlier one wins
//   - otherwise the later envelope in consensus order wins
//
// The rule is a total order over envelopes, so the folded result does not
// depend on delivery order.
func Supersedes[T Payload](existing *Entry[T], candidate *Envelope[T], payload T) bool {
	if existing == nil {
		return true
	}
	current := existing.Payload.Terminal()
	switch {
	case current && !payload.Terminal():
		return false
	case !current && payload.Terminal():
		return true
	case current && payload.Terminal():
		return precedes(candidate, existing.Envelope)
	default:
		return precedes(existing.Envelope, candidate)
	}
}

// precedes reports whether a is strictly before b in consensus order. Equal
// timestamps fall back to sequence number, then signature.
func precedes[T Payload](a, b *Envelope[T]) bool {
	at, bt := a.ConsensusTimestamp(), b.ConsensusTimestamp()
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	as, bs := a.SequenceNumber(), b.SequenceNumber()
	if as != bs {
		return as < bs
	}
	return a.Signature() < b.Signature()
}

// Fold applies rule to candidate and returns the key's next state and whether
// the candidate was accepted. The returned entry may differ from existing even
// when the candidate is rejected, because an initial operation always counts
// toward CreatedAt.
func Fold[T Payload](existing *Entry[T], candidate *Envelope[T], payload T, rule ConflictRule[T]) (*Entry[T], bool) {
	if rule == nil {
		rule = Supersedes[T]
	}
	ts := candidate.ConsensusTimestamp()

	var firstInitial time.Time
	if existing != nil {
		firstInitial = existing.firstInitial
	}
	if payload.Initial() && (firstInitial.IsZero() || ts.Before(firstInitial)) {
		firstInitial = ts
	}

	if !rule(existing, candidate, payload) {
		if existing == nil {
			return nil, false
		}
		next := *existing
		next.firstInitial = firstInitial
		return &next, false
	}
	return &Entry[T]{
		Envelope:     candidate,
		Payload:      payload,
		updatedAt:    ts,
		firstInitial: firstInitial,
	}, true
}
