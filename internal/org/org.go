// Package org exposes the school's organizational facts (classes,
// sections, subjects, periods, enrollments) to the messaging core. The
// master data is owned and mutated elsewhere; everything here is a read.
package org

import (
	"context"
	"errors"

	"edbox/internal/util"

	"github.com/google/uuid"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleStaff   Role = "staff"
)

// User is the identity the messaging core works with: who, which school,
// and in what capacity.
type User struct {
	ID       uuid.UUID
	SchoolID uuid.UUID
	Name     string
	Role     Role
}

type School struct {
	ID       uuid.UUID
	Name     string
	IsActive bool
}

// TeachingAssignment is one scheduled period from the teacher's side:
// which subject they take, for which class/section, in which batch.
type TeachingAssignment struct {
	ClassID   int64
	SectionID int64
	SubjectID uuid.UUID
	BatchID   int64
}

// Enrollment is the student's current placement. Section is optional;
// a student may be admitted to a batch before section assignment.
type Enrollment struct {
	BatchID   int64
	ClassID   int64
	SectionID util.Optional[int64]
}

var (
	ErrSchoolNotFound = errors.New("org: school not found")
	ErrNotEnrolled    = errors.New("org: student has no current enrollment")
	ErrClassNotFound  = errors.New("org: class not found")
	ErrSectionNotFound = errors.New("org: section not found")
	ErrSubjectNotFound = errors.New("org: subject not found")
)

// Resolver answers org-fact lookups for one school platform instance.
type Resolver interface {
	// School returns the school record, ErrSchoolNotFound otherwise.
	School(ctx context.Context, schoolID uuid.UUID) (School, error)

	// TeachingAssignments lists every scheduled period taught by the
	// user. Empty for users that teach nothing.
	TeachingAssignments(ctx context.Context, schoolID, teacherID uuid.UUID) ([]TeachingAssignment, error)

	// Enrollment returns the student's current batch/class/section, or
	// ErrNotEnrolled.
	Enrollment(ctx context.Context, schoolID, studentID uuid.UUID) (Enrollment, error)

	// ScheduledSubjects lists the distinct subjects with at least one
	// period scheduled for the given section and batch.
	ScheduledSubjects(ctx context.Context, schoolID uuid.UUID, sectionID, batchID int64) ([]uuid.UUID, error)

	// ClassName, SectionName and SubjectName back the live display names
	// of automatic groups.
	ClassName(ctx context.Context, schoolID uuid.UUID, classID int64) (string, error)
	SectionName(ctx context.Context, schoolID uuid.UUID, classID, sectionID int64) (string, error)
	SubjectName(ctx context.Context, schoolID, subjectID uuid.UUID) (string, error)
}
