// Package relation edits the multi-valued fields of an event or a user
// (assigned users, ban dates, preferred weekdays, preferred partners) by
// sending one incremental add or remove per changed member.
package relation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jrsteele09/minis-web/api"
	apperrors "github.com/jrsteele09/minis-web/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Spec names a relation, the field its patch body uses for a member, and its
// cardinality bound. MaxMembers 0 means unbounded.
type Spec[T comparable] struct {
	Name       string
	Field      string
	MaxMembers int
}

var (
	AssignedUsers     = Spec[int]{Name: "assignedUsers", Field: "userId"}
	BanDates          = Spec[string]{Name: "banDates", Field: "date"}
	PreferredWeekdays = Spec[api.Weekday]{Name: "preferredWeekdays", Field: "weekday"}
	PreferredPartners = Spec[int]{Name: "preferredPartners", Field: "otherUserId", MaxMembers: 3}
)

// Check rejects member sets larger than the bound.
func (s Spec[T]) Check(members []T) error {
	if s.MaxMembers > 0 && len(unique(members)) > s.MaxMembers {
		return &BoundsError{Relation: s.Name, Max: s.MaxMembers}
	}
	return nil
}

// BoundsError is returned before any request is sent.
type BoundsError struct {
	Relation string
	Max      int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("Maximal %d erlaubt", e.Max)
}

func (e *BoundsError) Unwrap() error {
	return apperrors.ErrBoundsViolation
}

// Change is one incremental patch.
type Change[T comparable] struct {
	Member T
	Add    bool
}

type PatchFunc[T comparable] func(ctx context.Context, change Change[T]) error

type LoadFunc[T comparable] func(ctx context.Context) ([]T, error)

// Policy decides what the editor does with its local set when a patch fails.
type Policy int

const (
	// KeepOptimistic leaves the optimistic set in place after a failure.
	KeepOptimistic Policy = iota
	// Refetch reloads the authoritative set after a failure.
	Refetch
)

// ParsePolicy maps the configured name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "keep":
		return KeepOptimistic, nil
	case "refetch":
		return Refetch, nil
	}
	return KeepOptimistic, fmt.Errorf("[relation ParsePolicy] unknown policy %q", name)
}

// Diff returns the members of proposed missing from current and the members
// of current missing from proposed, each in its source order.
func Diff[T comparable](current, proposed []T) (added, removed []T) {
	cur := toSet(current)
	prop := toSet(proposed)
	for _, m := range unique(proposed) {
		if _, ok := cur[m]; !ok {
			added = append(added, m)
		}
	}
	for _, m := range unique(current) {
		if _, ok := prop[m]; !ok {
			removed = append(removed, m)
		}
	}
	return added, removed
}

// Editor holds the local member set of one relation instance.
type Editor[T comparable] struct {
	spec   Spec[T]
	patch  PatchFunc[T]
	load   LoadFunc[T]
	policy Policy

	mu      sync.Mutex
	members []T
}

type Option[T comparable] func(*Editor[T])

// WithPolicy selects the failure policy. Refetch needs a loader.
func WithPolicy[T comparable](policy Policy, load LoadFunc[T]) Option[T] {
	return func(e *Editor[T]) {
		e.policy = policy
		e.load = load
	}
}

func NewEditor[T comparable](spec Spec[T], current []T, patch PatchFunc[T], opts ...Option[T]) *Editor[T] {
	e := &Editor[T]{
		spec:    spec,
		patch:   patch,
		members: unique(current),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Editor[T]) Spec() Spec[T] {
	return e.spec
}

// Members returns a copy of the local set.
func (e *Editor[T]) Members() []T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]T(nil), e.members...)
}

func (e *Editor[T]) Contains(member T) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.members {
		if m == member {
			return true
		}
	}
	return false
}

// Apply moves the local set to proposed. A bound violation leaves the set
// untouched and sends nothing. Otherwise the local set becomes proposed
// right away and one patch per added or removed member is sent; the patches
// run concurrently and all of them are attempted even if one fails.
func (e *Editor[T]) Apply(ctx context.Context, proposed []T) error {
	if err := e.spec.Check(proposed); err != nil {
		return err
	}

	e.mu.Lock()
	added, removed := Diff(e.members, proposed)
	if len(added) == 0 && len(removed) == 0 {
		e.mu.Unlock()
		return nil
	}
	e.members = unique(proposed)
	e.mu.Unlock()

	changes := make([]Change[T], 0, len(added)+len(removed))
	for _, m := range added {
		changes = append(changes, Change[T]{Member: m, Add: true})
	}
	for _, m := range removed {
		changes = append(changes, Change[T]{Member: m, Add: false})
	}

	// the local set already shows the change, so the patches must finish
	// even when the caller goes away
	ctx = context.WithoutCancel(ctx)
	var g errgroup.Group
	for _, c := range changes {
		g.Go(func() error {
			if err := e.patch(ctx, c); err != nil {
				return fmt.Errorf("[relation %s] %s %v (add=%t): %w", e.spec.Name, e.spec.Field, c.Member, c.Add, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		return nil
	}

	log.Warn().Err(err).Str("relation", e.spec.Name).Msg("patch failed")
	if e.policy == Refetch && e.load != nil {
		fresh, loadErr := e.load(ctx)
		if loadErr != nil {
			return errors.Join(err, fmt.Errorf("[relation %s] refetch: %w", e.spec.Name, loadErr))
		}
		e.mu.Lock()
		e.members = unique(fresh)
		e.mu.Unlock()
	}
	return err
}

// Toggle adds member when absent and removes it when present.
func (e *Editor[T]) Toggle(ctx context.Context, member T) error {
	current := e.Members()
	proposed := make([]T, 0, len(current)+1)
	found := false
	for _, m := range current {
		if m == member {
			found = true
			continue
		}
		proposed = append(proposed, m)
	}
	if !found {
		proposed = append(proposed, member)
	}
	return e.Apply(ctx, proposed)
}

func toSet[T comparable](members []T) map[T]struct{} {
	set := make(map[T]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set
}

func unique[T comparable](members []T) []T {
	seen := make(map[T]struct{}, len(members))
	out := make([]T, 0, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
