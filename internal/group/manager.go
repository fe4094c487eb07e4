package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"edbox/internal/database"
	"edbox/internal/org"
	"edbox/internal/util"

	"github.com/google/uuid"
)

var (
	// ErrMemberIsAdmin is returned when removing an admin member; they
	// have to be demoted first.
	ErrMemberIsAdmin = errors.New("group: member is an admin, demote first")
	ErrEmptyName     = errors.New("group: group name must not be empty")
)

// Manager owns the custom group lifecycle and the display names of all
// groups. Custom groups are soft-deleted; their message history stays
// addressable by canonical key.
type Manager struct {
	logger   *slog.Logger
	store    Store
	resolver org.Resolver
}

func NewManager(logger *slog.Logger, store Store, resolver org.Resolver) *Manager {
	return &Manager{logger: logger, store: store, resolver: resolver}
}

// Create inserts a new custom group. The creator becomes its first
// admin member.
func (m *Manager) Create(ctx context.Context, creator org.User, name string) (database.CustomGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return database.CustomGroup{}, ErrEmptyName
	}

	customGroup, err := m.store.CreateCustomGroup(ctx, database.CreateCustomGroupParams{
		SchoolID:  creator.SchoolID,
		Name:      name,
		CreatedBy: creator.ID,
	})
	if err != nil {
		return database.CustomGroup{}, fmt.Errorf("group: failed to create custom group: %w", err)
	}

	m.logger.Info("Custom group created", "group_id", customGroup.ID, "school_id", customGroup.SchoolID, "created_by", creator.ID)
	return customGroup, nil
}

// Rename changes the group's display name. Admin members only.
func (m *Manager) Rename(ctx context.Context, actor org.User, groupID uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	if _, err := m.requireAdmin(ctx, actor, groupID); err != nil {
		return err
	}

	if err := m.store.UpdateCustomGroupByID(ctx, groupID, database.UpdateCustomGroupParams{
		Name: util.Some(name),
	}); err != nil {
		return fmt.Errorf("group: failed to rename custom group: %w", err)
	}
	return nil
}

// AddMember adds a school-mate to the group. Adding an existing member
// is a no-op.
func (m *Manager) AddMember(ctx context.Context, actor org.User, groupID, userID uuid.UUID) error {
	customGroup, err := m.requireAdmin(ctx, actor, groupID)
	if err != nil {
		return err
	}

	target, err := m.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("group: failed to load user: %w", err)
	}
	if target.SchoolID != customGroup.SchoolID {
		return ErrCrossSchoolAccess
	}

	if _, err := m.store.GetCustomGroupMember(ctx, groupID, userID); err == nil {
		return nil
	} else if !errors.Is(err, database.ErrCustomGroupMemberNotFound) {
		return fmt.Errorf("group: failed to load membership: %w", err)
	}

	if _, err := m.store.CreateCustomGroupMember(ctx, database.CreateCustomGroupMemberParams{
		GroupID: groupID,
		UserID:  userID,
		IsAdmin: false,
	}); err != nil {
		return fmt.Errorf("group: failed to add member: %w", err)
	}
	return nil
}

// RemoveMember removes a non-admin member. Removing an admin fails with
// ErrMemberIsAdmin; removing a non-member is a no-op.
func (m *Manager) RemoveMember(ctx context.Context, actor org.User, groupID, userID uuid.UUID) error {
	if _, err := m.requireAdmin(ctx, actor, groupID); err != nil {
		return err
	}

	member, err := m.store.GetCustomGroupMember(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, database.ErrCustomGroupMemberNotFound) {
			return nil
		}
		return fmt.Errorf("group: failed to load membership: %w", err)
	}
	if member.IsAdmin {
		return ErrMemberIsAdmin
	}

	if err := m.store.DeleteCustomGroupMember(ctx, groupID, userID); err != nil {
		return fmt.Errorf("group: failed to remove member: %w", err)
	}
	return nil
}

// Promote grants admin to a member. Promoting an admin is a no-op.
func (m *Manager) Promote(ctx context.Context, actor org.User, groupID, userID uuid.UUID) error {
	return m.setAdmin(ctx, actor, groupID, userID, true)
}

// Demote revokes admin from a member. Demoting a plain member is a
// no-op. Admins may demote themselves.
func (m *Manager) Demote(ctx context.Context, actor org.User, groupID, userID uuid.UUID) error {
	return m.setAdmin(ctx, actor, groupID, userID, false)
}

func (m *Manager) setAdmin(ctx context.Context, actor org.User, groupID, userID uuid.UUID, isAdmin bool) error {
	if _, err := m.requireAdmin(ctx, actor, groupID); err != nil {
		return err
	}

	member, err := m.store.GetCustomGroupMember(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, database.ErrCustomGroupMemberNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("group: failed to load membership: %w", err)
	}
	if member.IsAdmin == isAdmin {
		return nil
	}

	if err := m.store.UpdateCustomGroupMemberAdmin(ctx, groupID, userID, isAdmin); err != nil {
		return fmt.Errorf("group: failed to update admin flag: %w", err)
	}
	return nil
}

// Deactivate soft-deletes the group. Admin members only.
func (m *Manager) Deactivate(ctx context.Context, actor org.User, groupID uuid.UUID) error {
	if _, err := m.requireAdmin(ctx, actor, groupID); err != nil {
		return err
	}

	if err := m.store.UpdateCustomGroupByID(ctx, groupID, database.UpdateCustomGroupParams{
		IsActive: util.Some(false),
	}); err != nil {
		return fmt.Errorf("group: failed to deactivate custom group: %w", err)
	}

	m.logger.Info("Custom group deactivated", "group_id", groupID, "actor", actor.ID)
	return nil
}

func (m *Manager) requireAdmin(ctx context.Context, actor org.User, groupID uuid.UUID) (database.CustomGroup, error) {
	customGroup, err := m.store.GetCustomGroupByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, database.ErrCustomGroupNotFound) {
			return database.CustomGroup{}, ErrNotFound
		}
		return database.CustomGroup{}, fmt.Errorf("group: failed to load custom group: %w", err)
	}
	if !customGroup.IsActive {
		return database.CustomGroup{}, ErrNotFound
	}
	if customGroup.SchoolID != actor.SchoolID {
		return database.CustomGroup{}, ErrCrossSchoolAccess
	}

	member, err := m.store.GetCustomGroupMember(ctx, groupID, actor.ID)
	if err != nil {
		if errors.Is(err, database.ErrCustomGroupMemberNotFound) {
			return database.CustomGroup{}, ErrForbidden
		}
		return database.CustomGroup{}, fmt.Errorf("group: failed to load membership: %w", err)
	}
	if !member.IsAdmin {
		return database.CustomGroup{}, ErrForbidden
	}
	return customGroup, nil
}

// Info is the display form of a group.
type Info struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

// Info resolves the display name of any group: live from org facts for
// automatic groups, stored for custom groups.
func (m *Manager) Info(ctx context.Context, id Identifier) (Info, error) {
	info := Info{Identifier: id.Encode()}

	switch v := id.(type) {
	case Custom:
		customGroup, err := m.store.GetCustomGroupByID(ctx, v.Group)
		if err != nil {
			if errors.Is(err, database.ErrCustomGroupNotFound) {
				return info, ErrNotFound
			}
			return info, fmt.Errorf("group: failed to load custom group: %w", err)
		}
		if !customGroup.IsActive || customGroup.SchoolID != v.School {
			return info, ErrNotFound
		}
		info.Name = customGroup.Name

	case School:
		school, err := m.resolver.School(ctx, v.School)
		if err != nil {
			return info, m.mapOrgErr(err)
		}
		info.Name = school.Name

	case Class:
		className, err := m.resolver.ClassName(ctx, v.School, v.Class)
		if err != nil {
			return info, m.mapOrgErr(err)
		}
		info.Name = className

	case Section:
		className, err := m.resolver.ClassName(ctx, v.School, v.Class)
		if err != nil {
			return info, m.mapOrgErr(err)
		}
		sectionName, err := m.resolver.SectionName(ctx, v.School, v.Class, v.Section)
		if err != nil {
			return info, m.mapOrgErr(err)
		}
		info.Name = fmt.Sprintf("%s %s", className, sectionName)

	case Subject:
		subjectName, err := m.resolver.SubjectName(ctx, v.School, v.Subject)
		if err != nil {
			return info, m.mapOrgErr(err)
		}
		info.Name = fmt.Sprintf("%s (batch %d)", subjectName, v.Batch)
	}

	return info, nil
}

func (m *Manager) mapOrgErr(err error) error {
	switch {
	case errors.Is(err, org.ErrSchoolNotFound),
		errors.Is(err, org.ErrClassNotFound),
		errors.Is(err, org.ErrSectionNotFound),
		errors.Is(err, org.ErrSubjectNotFound):
		return ErrNotFound
	default:
		return err
	}
}
