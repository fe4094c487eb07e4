package org

import (
	"context"
	"errors"
	"fmt"

	"edbox/internal/database"

	"github.com/google/uuid"
)

// PostgresResolver reads org facts from the platform's master tables.
type PostgresResolver struct {
	db *database.Database
}

func NewPostgresResolver(db *database.Database) *PostgresResolver {
	return &PostgresResolver{db: db}
}

var _ Resolver = (*PostgresResolver)(nil)

func (r *PostgresResolver) School(ctx context.Context, schoolID uuid.UUID) (School, error) {
	row, err := r.db.GetSchool(ctx, schoolID)
	if err != nil {
		if errors.Is(err, database.ErrSchoolNotFound) {
			return School{}, ErrSchoolNotFound
		}
		return School{}, fmt.Errorf("org: failed to load school: %w", err)
	}
	return School{ID: row.ID, Name: row.Name, IsActive: row.IsActive}, nil
}

func (r *PostgresResolver) TeachingAssignments(ctx context.Context, schoolID, teacherID uuid.UUID) ([]TeachingAssignment, error) {
	rows, err := r.db.ListTeachingAssignments(ctx, schoolID, teacherID)
	if err != nil {
		return nil, fmt.Errorf("org: failed to load teaching assignments: %w", err)
	}

	assignments := make([]TeachingAssignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, TeachingAssignment{
			ClassID:   row.ClassID,
			SectionID: row.SectionID,
			SubjectID: row.SubjectID,
			BatchID:   row.BatchID,
		})
	}
	return assignments, nil
}

func (r *PostgresResolver) Enrollment(ctx context.Context, schoolID, studentID uuid.UUID) (Enrollment, error) {
	row, err := r.db.GetStudentEnrollment(ctx, schoolID, studentID)
	if err != nil {
		if errors.Is(err, database.ErrEnrollmentNotFound) {
			return Enrollment{}, ErrNotEnrolled
		}
		return Enrollment{}, fmt.Errorf("org: failed to load enrollment: %w", err)
	}
	return Enrollment{
		BatchID:   row.BatchID,
		ClassID:   row.ClassID,
		SectionID: row.SectionID,
	}, nil
}

func (r *PostgresResolver) ScheduledSubjects(ctx context.Context, schoolID uuid.UUID, sectionID, batchID int64) ([]uuid.UUID, error) {
	subjects, err := r.db.ListScheduledSubjects(ctx, schoolID, sectionID, batchID)
	if err != nil {
		return nil, fmt.Errorf("org: failed to load scheduled subjects: %w", err)
	}
	return subjects, nil
}

func (r *PostgresResolver) ClassName(ctx context.Context, schoolID uuid.UUID, classID int64) (string, error) {
	name, err := r.db.GetClassName(ctx, schoolID, classID)
	if err != nil {
		if errors.Is(err, database.ErrClassNotFound) {
			return "", ErrClassNotFound
		}
		return "", fmt.Errorf("org: failed to load class name: %w", err)
	}
	return name, nil
}

func (r *PostgresResolver) SectionName(ctx context.Context, schoolID uuid.UUID, classID, sectionID int64) (string, error) {
	name, err := r.db.GetSectionName(ctx, schoolID, classID, sectionID)
	if err != nil {
		if errors.Is(err, database.ErrSectionNotFound) {
			return "", ErrSectionNotFound
		}
		return "", fmt.Errorf("org: failed to load section name: %w", err)
	}
	return name, nil
}

func (r *PostgresResolver) SubjectName(ctx context.Context, schoolID, subjectID uuid.UUID) (string, error) {
	name, err := r.db.GetSubjectName(ctx, schoolID, subjectID)
	if err != nil {
		if errors.Is(err, database.ErrSubjectNotFound) {
			return "", ErrSubjectNotFound
		}
		return "", fmt.Errorf("org: failed to load subject name: %w", err)
	}
	return name, nil
}
