package group

import (
	"context"
	"errors"
	"fmt"

	"edbox/internal/database"
	"edbox/internal/org"

	"github.com/google/uuid"
)

var (
	// ErrCrossSchoolAccess is returned whenever an identifier names a
	// school other than the caller's, regardless of any membership rows.
	ErrCrossSchoolAccess = errors.New("group: identifier belongs to another school")
	// ErrForbidden is returned when a user is no member of the group
	// they try to act on.
	ErrForbidden = errors.New("group: user is not a member of this group")
	// ErrNotFound is returned when a referenced group or user does not
	// exist (or the group has been deactivated).
	ErrNotFound = errors.New("group: not found")
)

// Store is the slice of the database the group package needs.
type Store interface {
	GetCustomGroupByID(ctx context.Context, id uuid.UUID) (database.CustomGroup, error)
	GetCustomGroupMember(ctx context.Context, groupID, userID uuid.UUID) (database.CustomGroupMember, error)
	CreateCustomGroup(ctx context.Context, params database.CreateCustomGroupParams) (database.CustomGroup, error)
	UpdateCustomGroupByID(ctx context.Context, id uuid.UUID, params database.UpdateCustomGroupParams) error
	CreateCustomGroupMember(ctx context.Context, params database.CreateCustomGroupMemberParams) (database.CustomGroupMember, error)
	UpdateCustomGroupMemberAdmin(ctx context.Context, groupID, userID uuid.UUID, isAdmin bool) error
	DeleteCustomGroupMember(ctx context.Context, groupID, userID uuid.UUID) error
	ListCustomGroupsByMember(ctx context.Context, schoolID, userID uuid.UUID) ([]database.CustomGroup, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
}

// Guard answers membership and authorization questions for both
// automatic and custom groups. Automatic memberships are recomputed from
// org facts on every call; only custom memberships are row lookups.
type Guard struct {
	deriver *Deriver
	store   Store
}

func NewGuard(deriver *Deriver, store Store) *Guard {
	return &Guard{deriver: deriver, store: store}
}

// AssertSchoolScope rejects identifiers from other schools outright.
// This holds even when a stale membership row exists for the user, so a
// broken row can never widen access across schools.
func (g *Guard) AssertSchoolScope(id Identifier, user org.User) error {
	if id.SchoolID() != user.SchoolID {
		return ErrCrossSchoolAccess
	}
	return nil
}

// IsMember reports whether the user belongs to the group. Custom groups
// consult the membership table; automatic groups rederive the user's set
// and test it. A missing or deactivated custom group is ErrNotFound.
func (g *Guard) IsMember(ctx context.Context, id Identifier, user org.User) (bool, error) {
	switch v := id.(type) {
	case Custom:
		customGroup, err := g.store.GetCustomGroupByID(ctx, v.Group)
		if err != nil {
			if errors.Is(err, database.ErrCustomGroupNotFound) {
				return false, ErrNotFound
			}
			return false, fmt.Errorf("group: failed to load custom group: %w", err)
		}
		if !customGroup.IsActive || customGroup.SchoolID != v.School {
			return false, ErrNotFound
		}

		if _, err := g.store.GetCustomGroupMember(ctx, v.Group, user.ID); err != nil {
			if errors.Is(err, database.ErrCustomGroupMemberNotFound) {
				return false, nil
			}
			return false, fmt.Errorf("group: failed to load membership: %w", err)
		}
		return true, nil

	default:
		derived, err := g.deriver.Derive(ctx, user)
		if err != nil {
			return false, err
		}
		return derived.Has(id), nil
	}
}

// CanSendMessage authorizes a post: school scope first, then
// membership. The School automatic group is a broadcast channel open to
// every member of the school, which falls out of the derivation (every
// role derives it while the school is active).
func (g *Guard) CanSendMessage(ctx context.Context, id Identifier, user org.User) error {
	if err := g.AssertSchoolScope(id, user); err != nil {
		return err
	}

	member, err := g.IsMember(ctx, id, user)
	if err != nil {
		return err
	}
	if !member {
		return ErrForbidden
	}
	return nil
}
