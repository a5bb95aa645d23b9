package relation

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/minis-web/api"
)

// Binding ties a relation instance to its API resource.
type Binding[T comparable] struct {
	Spec  Spec[T]
	Patch PatchFunc[T]
	Load  LoadFunc[T]
}

// Editor builds an editor over current using the binding's patch and,
// for the Refetch policy, its loader.
func (b Binding[T]) Editor(current []T, policy Policy) *Editor[T] {
	return NewEditor(b.Spec, current, b.Patch, WithPolicy(policy, b.Load))
}

// EventAssignments binds the assignment set of the event on date
// ("YYYY-MM-DD"). There is no single-event read, so a refetch lists that
// day and picks the event out.
func EventAssignments(c *api.Client, token string, eventID int, date string) Binding[int] {
	return Binding[int]{
		Spec: AssignedUsers,
		Patch: func(ctx context.Context, ch Change[int]) error {
			return c.AssignUser(ctx, token, eventID, ch.Member, ch.Add)
		},
		Load: func(ctx context.Context) ([]int, error) {
			day, err := time.Parse(api.DateLayout, date)
			if err != nil {
				return nil, fmt.Errorf("[relation assignedUsers] event date %q: %w", date, err)
			}
			events, err := c.Events(ctx, token, day, day)
			if err != nil {
				return nil, err
			}
			for _, ev := range events {
				if ev.ID == eventID {
					return ev.AssignedUserIDs, nil
				}
			}
			return []int{}, nil
		},
	}
}

func UserBanDates(c *api.Client, token string, userID int) Binding[string] {
	return Binding[string]{
		Spec: BanDates,
		Patch: func(ctx context.Context, ch Change[string]) error {
			return c.UpdateBanDate(ctx, token, userID, ch.Member, ch.Add)
		},
		Load: func(ctx context.Context) ([]string, error) {
			return c.BanDates(ctx, token, userID)
		},
	}
}

func UserWeekdays(c *api.Client, token string, userID int) Binding[api.Weekday] {
	return Binding[api.Weekday]{
		Spec: PreferredWeekdays,
		Patch: func(ctx context.Context, ch Change[api.Weekday]) error {
			return c.UpdateWeekday(ctx, token, userID, ch.Member, ch.Add)
		},
		Load: func(ctx context.Context) ([]api.Weekday, error) {
			return c.Weekdays(ctx, token, userID)
		},
	}
}

func UserPartners(c *api.Client, token string, userID int) Binding[int] {
	return Binding[int]{
		Spec: PreferredPartners,
		Patch: func(ctx context.Context, ch Change[int]) error {
			return c.UpdatePreferredPartner(ctx, token, userID, ch.Member, ch.Add)
		},
		Load: func(ctx context.Context) ([]int, error) {
			return c.PreferredPartners(ctx, token, userID)
		},
	}
}
