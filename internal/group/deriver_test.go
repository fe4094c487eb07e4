package group_test

import (
	"context"
	"testing"

	"edbox/internal/group"
	"edbox/internal/org"
	"edbox/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver serves canned org facts.
type fakeResolver struct {
	school      org.School
	schoolErr   error
	assignments []org.TeachingAssignment
	enrollment  org.Enrollment
	enrollErr   error
	subjects    []uuid.UUID
	names       map[string]string
}

func (f *fakeResolver) School(ctx context.Context, schoolID uuid.UUID) (org.School, error) {
	if f.schoolErr != nil {
		return org.School{}, f.schoolErr
	}
	return f.school, nil
}

func (f *fakeResolver) TeachingAssignments(ctx context.Context, schoolID, teacherID uuid.UUID) ([]org.TeachingAssignment, error) {
	return f.assignments, nil
}

func (f *fakeResolver) Enrollment(ctx context.Context, schoolID, studentID uuid.UUID) (org.Enrollment, error) {
	if f.enrollErr != nil {
		return org.Enrollment{}, f.enrollErr
	}
	return f.enrollment, nil
}

func (f *fakeResolver) ScheduledSubjects(ctx context.Context, schoolID uuid.UUID, sectionID, batchID int64) ([]uuid.UUID, error) {
	return f.subjects, nil
}

func (f *fakeResolver) ClassName(ctx context.Context, schoolID uuid.UUID, classID int64) (string, error) {
	if name, ok := f.names["class"]; ok {
		return name, nil
	}
	return "", org.ErrClassNotFound
}

func (f *fakeResolver) SectionName(ctx context.Context, schoolID uuid.UUID, classID, sectionID int64) (string, error) {
	if name, ok := f.names["section"]; ok {
		return name, nil
	}
	return "", org.ErrSectionNotFound
}

func (f *fakeResolver) SubjectName(ctx context.Context, schoolID, subjectID uuid.UUID) (string, error) {
	if name, ok := f.names["subject"]; ok {
		return name, nil
	}
	return "", org.ErrSubjectNotFound
}

func activeSchool() org.School {
	return org.School{ID: testSchoolID, Name: "Test School", IsActive: true}
}

func TestDeriver_Teacher(t *testing.T) {
	maths := uuid.MustParse("aa0e8e46-36a2-4d6d-9f66-53b6d7f2a001")

	resolver := &fakeResolver{
		school: activeSchool(),
		assignments: []org.TeachingAssignment{
			{ClassID: 3, SectionID: 1, SubjectID: maths, BatchID: 1},
		},
	}
	deriver := group.NewDeriver(resolver)

	user := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: org.RoleTeacher}
	set, err := deriver.Derive(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, 3, set.Len())
	assert.True(t, set.Has(group.School{School: testSchoolID}))
	assert.True(t, set.Has(group.Class{School: testSchoolID, Class: 3}))
	assert.True(t, set.Has(group.Subject{School: testSchoolID, Subject: maths, Batch: 1}))
}

func TestDeriver_TeacherDedup(t *testing.T) {
	maths := uuid.MustParse("aa0e8e46-36a2-4d6d-9f66-53b6d7f2a001")

	// Two periods in different sections of the same class, same subject:
	// still one Class group and one Subject group.
	resolver := &fakeResolver{
		school: activeSchool(),
		assignments: []org.TeachingAssignment{
			{ClassID: 3, SectionID: 1, SubjectID: maths, BatchID: 1},
			{ClassID: 3, SectionID: 2, SubjectID: maths, BatchID: 1},
		},
	}
	deriver := group.NewDeriver(resolver)

	user := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: org.RoleTeacher}
	set, err := deriver.Derive(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, 3, set.Len())
	for _, id := range set.Sorted() {
		_, isSection := id.(group.Section)
		assert.False(t, isSection, "teachers never get section groups")
	}
}

func TestDeriver_Student(t *testing.T) {
	maths := uuid.MustParse("aa0e8e46-36a2-4d6d-9f66-53b6d7f2a001")
	science := uuid.MustParse("bb0e8e46-36a2-4d6d-9f66-53b6d7f2a002")
	english := uuid.MustParse("cc0e8e46-36a2-4d6d-9f66-53b6d7f2a003")

	resolver := &fakeResolver{
		school: activeSchool(),
		enrollment: org.Enrollment{
			BatchID:   1,
			ClassID:   3,
			SectionID: util.Some[int64](1),
		},
		subjects: []uuid.UUID{maths, science, english},
	}
	deriver := group.NewDeriver(resolver)

	user := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: org.RoleStudent}
	set, err := deriver.Derive(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, 6, set.Len())
	assert.True(t, set.Has(group.School{School: testSchoolID}))
	assert.True(t, set.Has(group.Class{School: testSchoolID, Class: 3}))
	assert.True(t, set.Has(group.Section{School: testSchoolID, Class: 3, Section: 1}))
	assert.True(t, set.Has(group.Subject{School: testSchoolID, Subject: maths, Batch: 1}))
	assert.True(t, set.Has(group.Subject{School: testSchoolID, Subject: science, Batch: 1}))
	assert.True(t, set.Has(group.Subject{School: testSchoolID, Subject: english, Batch: 1}))
}

func TestDeriver_StudentWithoutSection(t *testing.T) {
	resolver := &fakeResolver{
		school: activeSchool(),
		enrollment: org.Enrollment{
			BatchID: 1,
			ClassID: 3,
		},
		subjects: []uuid.UUID{uuid.New()},
	}
	deriver := group.NewDeriver(resolver)

	user := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: org.RoleStudent}
	set, err := deriver.Derive(context.Background(), user)
	require.NoError(t, err)

	// No section assigned yet: class only, no section or subject groups.
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Has(group.School{School: testSchoolID}))
	assert.True(t, set.Has(group.Class{School: testSchoolID, Class: 3}))
}

func TestDeriver_StudentNotEnrolled(t *testing.T) {
	resolver := &fakeResolver{
		school:    activeSchool(),
		enrollErr: org.ErrNotEnrolled,
	}
	deriver := group.NewDeriver(resolver)

	user := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: org.RoleStudent}
	set, err := deriver.Derive(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, 1, set.Len())
	assert.True(t, set.Has(group.School{School: testSchoolID}))
}

func TestDeriver_ParentAndStaff(t *testing.T) {
	for _, role := range []org.Role{org.RoleParent, org.RoleStaff} {
		t.Run(string(role), func(t *testing.T) {
			deriver := group.NewDeriver(&fakeResolver{school: activeSchool()})

			user := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: role}
			set, err := deriver.Derive(context.Background(), user)
			require.NoError(t, err)

			assert.Equal(t, 1, set.Len())
			assert.True(t, set.Has(group.School{School: testSchoolID}))
		})
	}
}

func TestDeriver_InactiveSchool(t *testing.T) {
	resolver := &fakeResolver{
		school: org.School{ID: testSchoolID, Name: "Closed", IsActive: false},
	}
	deriver := group.NewDeriver(resolver)

	user := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: org.RoleStaff}
	set, err := deriver.Derive(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestDeriver_Deterministic(t *testing.T) {
	maths := uuid.MustParse("aa0e8e46-36a2-4d6d-9f66-53b6d7f2a001")
	resolver := &fakeResolver{
		school: activeSchool(),
		assignments: []org.TeachingAssignment{
			{ClassID: 3, SectionID: 1, SubjectID: maths, BatchID: 1},
			{ClassID: 4, SectionID: 2, SubjectID: maths, BatchID: 2},
		},
	}
	deriver := group.NewDeriver(resolver)
	user := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: org.RoleTeacher}

	first, err := deriver.Derive(context.Background(), user)
	require.NoError(t, err)

	for range 10 {
		again, err := deriver.Derive(context.Background(), user)
		require.NoError(t, err)
		assert.Equal(t, first.Keys(), again.Keys())
	}
}
