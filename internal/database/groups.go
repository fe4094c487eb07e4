package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"edbox/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type CreateCustomGroupParams struct {
	SchoolID  uuid.UUID
	Name      string
	CreatedBy uuid.UUID
}

// CreateCustomGroup inserts the group and its creator's admin membership
// in one transaction.
func (db *Database) CreateCustomGroup(ctx context.Context, params CreateCustomGroupParams) (CustomGroup, error) {
	group := CustomGroup{
		ID:        uuid.New(),
		SchoolID:  params.SchoolID,
		Name:      params.Name,
		CreatedBy: params.CreatedBy,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return group, fmt.Errorf("database: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO tbl_custom_group (id, school_id, name, created_by, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		group.ID, group.SchoolID, group.Name, group.CreatedBy, group.IsActive, group.CreatedAt, group.UpdatedAt); err != nil {
		return group, fmt.Errorf("database: failed to insert custom group (name=%s): %w", group.Name, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO tbl_custom_group_member (id, group_id, user_id, is_admin, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), group.ID, group.CreatedBy, true, group.CreatedAt, group.UpdatedAt); err != nil {
		return group, fmt.Errorf("database: failed to insert creator membership (group_id=%s): %w", group.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return group, fmt.Errorf("database: failed to commit custom group: %w", err)
	}
	return group, nil
}

func (db *Database) GetCustomGroupByID(ctx context.Context, id uuid.UUID) (CustomGroup, error) {
	var group CustomGroup

	err := db.Pool.QueryRow(ctx,
		`SELECT id, school_id, name, created_by, is_active, created_at, updated_at FROM tbl_custom_group WHERE id = $1`, id).
		Scan(&group.ID, &group.SchoolID, &group.Name, &group.CreatedBy, &group.IsActive, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return group, ErrCustomGroupNotFound
		}
		return group, fmt.Errorf("database: failed to scan custom group: %w", err)
	}
	return group, nil
}

type UpdateCustomGroupParams struct {
	Name     util.Optional[string]
	IsActive util.Optional[bool]
}

func (db *Database) UpdateCustomGroupByID(ctx context.Context, id uuid.UUID, params UpdateCustomGroupParams) error {
	var query strings.Builder
	query.WriteString(`UPDATE tbl_custom_group SET `)
	var args []any
	argNum := 1

	if params.Name.IsSet {
		query.WriteString(fmt.Sprintf("name = $%d, ", argNum))
		args = append(args, params.Name.Val)
		argNum++
	}
	if params.IsActive.IsSet {
		query.WriteString(fmt.Sprintf("is_active = $%d, ", argNum))
		args = append(args, params.IsActive.Val)
		argNum++
	}

	query.WriteString(fmt.Sprintf("updated_at = $%d WHERE id = $%d", argNum, argNum+1))
	args = append(args, time.Now().UTC(), id)

	tag, err := db.Pool.Exec(ctx, query.String(), args...)
	if err != nil {
		return fmt.Errorf("database: failed to update custom group (id=%s): %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomGroupNotFound
	}
	return nil
}

type CreateCustomGroupMemberParams struct {
	GroupID uuid.UUID
	UserID  uuid.UUID
	IsAdmin bool
}

func (db *Database) CreateCustomGroupMember(ctx context.Context, params CreateCustomGroupMemberParams) (CustomGroupMember, error) {
	member := CustomGroupMember{
		ID:        uuid.New(),
		GroupID:   params.GroupID,
		UserID:    params.UserID,
		IsAdmin:   params.IsAdmin,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if _, err := db.Pool.Exec(ctx,
		`INSERT INTO tbl_custom_group_member (id, group_id, user_id, is_admin, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		member.ID, member.GroupID, member.UserID, member.IsAdmin, member.CreatedAt, member.UpdatedAt); err != nil {
		return member, fmt.Errorf("database: failed to insert custom group member (group_id=%s, user_id=%s): %w", member.GroupID, member.UserID, err)
	}
	return member, nil
}

func (db *Database) GetCustomGroupMember(ctx context.Context, groupID, userID uuid.UUID) (CustomGroupMember, error) {
	var member CustomGroupMember

	err := db.Pool.QueryRow(ctx,
		`SELECT id, group_id, user_id, is_admin, created_at, updated_at FROM tbl_custom_group_member WHERE group_id = $1 AND user_id = $2`,
		groupID, userID).
		Scan(&member.ID, &member.GroupID, &member.UserID, &member.IsAdmin, &member.CreatedAt, &member.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return member, ErrCustomGroupMemberNotFound
		}
		return member, fmt.Errorf("database: failed to scan custom group member: %w", err)
	}
	return member, nil
}

func (db *Database) UpdateCustomGroupMemberAdmin(ctx context.Context, groupID, userID uuid.UUID, isAdmin bool) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE tbl_custom_group_member SET is_admin = $1, updated_at = $2 WHERE group_id = $3 AND user_id = $4`,
		isAdmin, time.Now().UTC(), groupID, userID)
	if err != nil {
		return fmt.Errorf("database: failed to update custom group member (group_id=%s, user_id=%s): %w", groupID, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomGroupMemberNotFound
	}
	return nil
}

func (db *Database) DeleteCustomGroupMember(ctx context.Context, groupID, userID uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM tbl_custom_group_member WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("database: failed to delete custom group member (group_id=%s, user_id=%s): %w", groupID, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomGroupMemberNotFound
	}
	return nil
}

// ListCustomGroupsByMember returns the active custom groups the user
// belongs to within one school.
func (db *Database) ListCustomGroupsByMember(ctx context.Context, schoolID, userID uuid.UUID) ([]CustomGroup, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT g.id, g.school_id, g.name, g.created_by, g.is_active, g.created_at, g.updated_at
		 FROM tbl_custom_group g
		 JOIN tbl_custom_group_member m ON m.group_id = g.id
		 WHERE g.school_id = $1 AND m.user_id = $2 AND g.is_active
		 ORDER BY g.created_at`, schoolID, userID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list custom groups: %w", err)
	}
	defer rows.Close()

	var groups []CustomGroup
	for rows.Next() {
		var g CustomGroup
		if err := rows.Scan(&g.ID, &g.SchoolID, &g.Name, &g.CreatedBy, &g.IsActive, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan custom group: %w", err)
		}
		groups = append(groups, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate custom groups: %w", err)
	}

	return groups, nil
}
