package group

import (
	"context"
	"errors"
	"fmt"

	"edbox/internal/org"
)

// Deriver computes the automatic group memberships of a user from their
// role and the school's org facts. The result is a pure function of its
// inputs; nothing derived here is ever persisted as a membership row.
type Deriver struct {
	resolver org.Resolver
}

func NewDeriver(resolver org.Resolver) *Deriver {
	return &Deriver{resolver: resolver}
}

// Derive returns the set of automatic groups the user belongs to.
func (d *Deriver) Derive(ctx context.Context, user org.User) (*Set, error) {
	set := NewSet()

	school, err := d.resolver.School(ctx, user.SchoolID)
	if err != nil {
		return nil, fmt.Errorf("group: failed to resolve school %s: %w", user.SchoolID, err)
	}
	if school.IsActive {
		set.Add(School{School: user.SchoolID})
	}

	switch user.Role {
	case org.RoleTeacher:
		if err := d.deriveTeacher(ctx, user, set); err != nil {
			return nil, err
		}
	case org.RoleStudent:
		if err := d.deriveStudent(ctx, user, set); err != nil {
			return nil, err
		}
	case org.RoleParent, org.RoleStaff:
		// School group only for now. Deriving a parent's groups from
		// their children's enrollments needs a guardianship fact the
		// resolver does not expose yet.
	}

	return set, nil
}

// Teachers get one Class group per distinct class they teach and one
// Subject group per distinct (subject, batch) pair, but never Section
// groups: a teacher covering one section of a class still addresses the
// class as a whole.
func (d *Deriver) deriveTeacher(ctx context.Context, user org.User, set *Set) error {
	assignments, err := d.resolver.TeachingAssignments(ctx, user.SchoolID, user.ID)
	if err != nil {
		return fmt.Errorf("group: failed to resolve teaching assignments for %s: %w", user.ID, err)
	}

	for _, a := range assignments {
		set.Add(Class{School: user.SchoolID, Class: a.ClassID})
		set.Add(Subject{School: user.SchoolID, Subject: a.SubjectID, Batch: a.BatchID})
	}
	return nil
}

// Students get the Class of their current batch, the Section group once
// a section is assigned, and one Subject group per subject with a
// scheduled period in that section and batch.
func (d *Deriver) deriveStudent(ctx context.Context, user org.User, set *Set) error {
	enrollment, err := d.resolver.Enrollment(ctx, user.SchoolID, user.ID)
	if err != nil {
		if errors.Is(err, org.ErrNotEnrolled) {
			return nil
		}
		return fmt.Errorf("group: failed to resolve enrollment for %s: %w", user.ID, err)
	}

	set.Add(Class{School: user.SchoolID, Class: enrollment.ClassID})

	if !enrollment.SectionID.IsSet {
		return nil
	}
	sectionID := enrollment.SectionID.Val
	set.Add(Section{School: user.SchoolID, Class: enrollment.ClassID, Section: sectionID})

	subjects, err := d.resolver.ScheduledSubjects(ctx, user.SchoolID, sectionID, enrollment.BatchID)
	if err != nil {
		return fmt.Errorf("group: failed to resolve scheduled subjects for section %d: %w", sectionID, err)
	}
	for _, subjectID := range subjects {
		set.Add(Subject{School: user.SchoolID, Subject: subjectID, Batch: enrollment.BatchID})
	}
	return nil
}
