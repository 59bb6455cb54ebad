package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return base.Add(time.Duration(seconds) * time.Second)
}

func foldAll(envs []*Envelope[*note]) *Entry[*note] {
	var entry *Entry[*note]
	for _, env := range envs {
		next, _ := Fold(entry, env, env.Payload(), Supersedes[*note])
		if next != nil {
			entry = next
		}
	}
	return entry
}

func permutations(envs []*Envelope[*note]) [][]*Envelope[*note] {
	if len(envs) <= 1 {
		return [][]*Envelope[*note]{append([]*Envelope[*note](nil), envs...)}
	}
	var out [][]*Envelope[*note]
	for i := range envs {
		rest := make([]*Envelope[*note], 0, len(envs)-1)
		rest = append(rest, envs[:i]...)
		rest = append(rest, envs[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]*Envelope[*note]{envs[i]}, p...))
		}
	}
	return out
}

func TestFoldIsOrderIndependent(t *testing.T) {
	key := newKey(t)
	scenarios := map[string][]*Envelope[*note]{
		"lifecycle": {
			deliveredAt(t, key, &note{Op: "open", Key: "k", Body: "v1"}, at(1), 1),
			deliveredAt(t, key, &note{Op: "edit", Key: "k", Body: "v2"}, at(2), 2),
			deliveredAt(t, key, &note{Op: "edit", Key: "k", Body: "v3"}, at(3), 3),
			deliveredAt(t, key, &note{Op: "close", Key: "k", Body: "v4"}, at(4), 4),
		},
		"edits after close": {
			deliveredAt(t, key, &note{Op: "open", Key: "k", Body: "v1"}, at(1), 1),
			deliveredAt(t, key, &note{Op: "close", Key: "k", Body: "v2"}, at(2), 2),
			deliveredAt(t, key, &note{Op: "edit", Key: "k", Body: "v3"}, at(3), 3),
			deliveredAt(t, key, &note{Op: "close", Key: "k", Body: "v4"}, at(4), 4),
		},
		"identical timestamps": {
			deliveredAt(t, key, &note{Op: "open", Key: "k", Body: "v1"}, at(1), 1),
			deliveredAt(t, key, &note{Op: "edit", Key: "k", Body: "v2"}, at(1), 2),
			deliveredAt(t, key, &note{Op: "edit", Key: "k", Body: "v3"}, at(1), 3),
		},
	}

	for name, envs := range scenarios {
		t.Run(name, func(t *testing.T) {
			want := foldAll(envs)
			require.NotNil(t, want)
			for _, order := range permutations(envs) {
				got := foldAll(order)
				require.NotNil(t, got)
				assert.Same(t, want.Envelope, got.Envelope)
				assert.Equal(t, want.CreatedAt(), got.CreatedAt())
				assert.Equal(t, want.UpdatedAt(), got.UpdatedAt())
			}
		})
	}
}

func TestTerminalDominates(t *testing.T) {
	key := newKey(t)
	open := deliveredAt(t, key, &note{Op: "open", Key: "k"}, at(1), 1)
	closed := deliveredAt(t, key, &note{Op: "close", Key: "k"}, at(2), 2)
	edit := deliveredAt(t, key, &note{Op: "edit", Key: "k"}, at(3), 3)

	t.Run("later non-terminal never replaces terminal", func(t *testing.T) {
		entry := foldAll([]*Envelope[*note]{open, closed, edit})
		assert.Same(t, closed, entry.Envelope)
	})

	t.Run("terminal replaces later non-terminal", func(t *testing.T) {
		entry := foldAll([]*Envelope[*note]{open, edit, closed})
		assert.Same(t, closed, entry.Envelope)
		assert.Equal(t, at(2), entry.UpdatedAt())
	})

	t.Run("earlier terminal wins over later terminal", func(t *testing.T) {
		late := deliveredAt(t, key, &note{Op: "close", Key: "k", Body: "late"}, at(5), 5)
		entry := foldAll([]*Envelope[*note]{late, closed})
		assert.Same(t, closed, entry.Envelope)
	})
}

func TestLaterNonTerminalWins(t *testing.T) {
	key := newKey(t)
	first := deliveredAt(t, key, &note{Op: "open", Key: "k"}, at(1), 1)
	second := deliveredAt(t, key, &note{Op: "edit", Key: "k"}, at(2), 2)

	entry, accepted := Fold(nil, second, second.Payload(), Supersedes[*note])
	require.True(t, accepted)

	entry, accepted = Fold(entry, first, first.Payload(), Supersedes[*note])
	assert.False(t, accepted)
	assert.Same(t, second, entry.Envelope)
}

func TestSequenceBreaksTimestampTies(t *testing.T) {
	key := newKey(t)
	a := deliveredAt(t, key, &note{Op: "edit", Key: "k", Body: "a"}, at(1), 7)
	b := deliveredAt(t, key, &note{Op: "edit", Key: "k", Body: "b"}, at(1), 8)

	assert.Same(t, b, foldAll([]*Envelope[*note]{a, b}).Envelope)
	assert.Same(t, b, foldAll([]*Envelope[*note]{b, a}).Envelope)
}

func TestCreatedAt(t *testing.T) {
	key := newKey(t)

	t.Run("kept from the earliest open after later edits", func(t *testing.T) {
		open := deliveredAt(t, key, &note{Op: "open", Key: "k"}, at(1), 1)
		edit := deliveredAt(t, key, &note{Op: "edit", Key: "k"}, at(5), 2)

		entry := foldAll([]*Envelope[*note]{edit, open})
		assert.Same(t, edit, entry.Envelope)
		assert.Equal(t, at(1), entry.CreatedAt())
		assert.Equal(t, at(5), entry.UpdatedAt())
	})

	t.Run("zero without an open", func(t *testing.T) {
		edit := deliveredAt(t, key, &note{Op: "edit", Key: "k"}, at(5), 2)
		assert.True(t, foldAll([]*Envelope[*note]{edit}).CreatedAt().IsZero())
	})

	t.Run("zero when only opened after close", func(t *testing.T) {
		closed := deliveredAt(t, key, &note{Op: "close", Key: "k"}, at(2), 1)
		open := deliveredAt(t, key, &note{Op: "open", Key: "k"}, at(3), 2)

		entry := foldAll([]*Envelope[*note]{open, closed})
		assert.Same(t, closed, entry.Envelope)
		assert.True(t, entry.CreatedAt().IsZero())
	})
}

func TestFoldWithRejectingRule(t *testing.T) {
	key := newKey(t)
	env := deliveredAt(t, key, &note{Op: "open", Key: "k"}, at(1), 1)
	never := func(*Entry[*note], *Envelope[*note], *note) bool { return false }

	entry, accepted := Fold(nil, env, env.Payload(), never)
	assert.False(t, accepted)
	assert.Nil(t, entry)
}
