package database

// Org master data (schools, classes, sections, subjects, batches,
// periods, student profiles) is owned by the administration services.
// The messaging core only ever reads it.

import (
	"context"
	"errors"
	"fmt"

	"edbox/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (db *Database) GetSchool(ctx context.Context, id uuid.UUID) (School, error) {
	var school School

	err := db.Pool.QueryRow(ctx,
		`SELECT id, name, is_active, created_at, updated_at FROM tbl_school WHERE id = $1`, id).
		Scan(&school.ID, &school.Name, &school.IsActive, &school.CreatedAt, &school.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return school, ErrSchoolNotFound
		}
		return school, fmt.Errorf("database: failed to scan school: %w", err)
	}
	return school, nil
}

func (db *Database) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	var user User

	err := db.Pool.QueryRow(ctx,
		`SELECT id, school_id, name, role, created_at, updated_at FROM tbl_user WHERE id = $1`, id).
		Scan(&user.ID, &user.SchoolID, &user.Name, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, ErrUserNotFound
		}
		return user, fmt.Errorf("database: failed to scan user: %w", err)
	}
	return user, nil
}

func (db *Database) GetClassName(ctx context.Context, schoolID uuid.UUID, classID int64) (string, error) {
	var name string

	err := db.Pool.QueryRow(ctx,
		`SELECT name FROM tbl_class WHERE school_id = $1 AND id = $2`, schoolID, classID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrClassNotFound
		}
		return "", fmt.Errorf("database: failed to scan class: %w", err)
	}
	return name, nil
}

func (db *Database) GetSectionName(ctx context.Context, schoolID uuid.UUID, classID, sectionID int64) (string, error) {
	var name string

	err := db.Pool.QueryRow(ctx,
		`SELECT name FROM tbl_section WHERE school_id = $1 AND class_id = $2 AND id = $3`,
		schoolID, classID, sectionID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSectionNotFound
		}
		return "", fmt.Errorf("database: failed to scan section: %w", err)
	}
	return name, nil
}

func (db *Database) GetSubjectName(ctx context.Context, schoolID, subjectID uuid.UUID) (string, error) {
	var name string

	err := db.Pool.QueryRow(ctx,
		`SELECT name FROM tbl_subject WHERE school_id = $1 AND id = $2`, schoolID, subjectID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSubjectNotFound
		}
		return "", fmt.Errorf("database: failed to scan subject: %w", err)
	}
	return name, nil
}

type TeachingAssignmentRow struct {
	ClassID   int64
	SectionID int64
	SubjectID uuid.UUID
	BatchID   int64
}

// ListTeachingAssignments returns the distinct (class, section, subject,
// batch) tuples the teacher has scheduled periods for.
func (db *Database) ListTeachingAssignments(ctx context.Context, schoolID, teacherID uuid.UUID) ([]TeachingAssignmentRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT DISTINCT class_id, section_id, subject_id, batch_id
		 FROM tbl_period
		 WHERE school_id = $1 AND teacher_id = $2`, schoolID, teacherID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list teaching assignments: %w", err)
	}
	defer rows.Close()

	var assignments []TeachingAssignmentRow
	for rows.Next() {
		var a TeachingAssignmentRow
		if err := rows.Scan(&a.ClassID, &a.SectionID, &a.SubjectID, &a.BatchID); err != nil {
			return nil, fmt.Errorf("database: failed to scan teaching assignment: %w", err)
		}
		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate teaching assignments: %w", err)
	}

	return assignments, nil
}

type EnrollmentRow struct {
	BatchID   int64
	ClassID   int64
	SectionID util.Optional[int64]
}

// GetStudentEnrollment resolves the student's active batch to its class,
// plus the assigned section when there is one.
func (db *Database) GetStudentEnrollment(ctx context.Context, schoolID, studentID uuid.UUID) (EnrollmentRow, error) {
	var enrollment EnrollmentRow

	err := db.Pool.QueryRow(ctx,
		`SELECT b.id, b.class_id, sp.section_id
		 FROM tbl_student_profile sp
		 JOIN tbl_batch b ON b.school_id = sp.school_id AND b.id = sp.batch_id
		 WHERE sp.school_id = $1 AND sp.user_id = $2 AND b.is_active`,
		schoolID, studentID).
		Scan(&enrollment.BatchID, &enrollment.ClassID, &enrollment.SectionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return enrollment, ErrEnrollmentNotFound
		}
		return enrollment, fmt.Errorf("database: failed to scan enrollment: %w", err)
	}
	return enrollment, nil
}

// ListScheduledSubjects returns the distinct subjects with at least one
// period scheduled for the section and batch.
func (db *Database) ListScheduledSubjects(ctx context.Context, schoolID uuid.UUID, sectionID, batchID int64) ([]uuid.UUID, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT DISTINCT subject_id
		 FROM tbl_period
		 WHERE school_id = $1 AND section_id = $2 AND batch_id = $3`,
		schoolID, sectionID, batchID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list scheduled subjects: %w", err)
	}
	defer rows.Close()

	var subjects []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("database: failed to scan scheduled subject: %w", err)
		}
		subjects = append(subjects, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate scheduled subjects: %w", err)
	}

	return subjects, nil
}
