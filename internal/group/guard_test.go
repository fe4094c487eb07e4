package group_test

import (
	"context"
	"testing"
	"time"

	"edbox/internal/database"
	"edbox/internal/group"
	"edbox/internal/org"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps custom groups, memberships and users in maps with the
// same semantics as the database layer.
type fakeStore struct {
	groups  map[uuid.UUID]database.CustomGroup
	members map[uuid.UUID]map[uuid.UUID]database.CustomGroupMember
	users   map[uuid.UUID]database.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		groups:  make(map[uuid.UUID]database.CustomGroup),
		members: make(map[uuid.UUID]map[uuid.UUID]database.CustomGroupMember),
		users:   make(map[uuid.UUID]database.User),
	}
}

func (f *fakeStore) addUser(user org.User) {
	f.users[user.ID] = database.User{
		ID:       user.ID,
		SchoolID: user.SchoolID,
		Name:     user.Name,
		Role:     string(user.Role),
	}
}

func (f *fakeStore) GetCustomGroupByID(ctx context.Context, id uuid.UUID) (database.CustomGroup, error) {
	customGroup, ok := f.groups[id]
	if !ok {
		return database.CustomGroup{}, database.ErrCustomGroupNotFound
	}
	return customGroup, nil
}

func (f *fakeStore) GetCustomGroupMember(ctx context.Context, groupID, userID uuid.UUID) (database.CustomGroupMember, error) {
	member, ok := f.members[groupID][userID]
	if !ok {
		return database.CustomGroupMember{}, database.ErrCustomGroupMemberNotFound
	}
	return member, nil
}

func (f *fakeStore) CreateCustomGroup(ctx context.Context, params database.CreateCustomGroupParams) (database.CustomGroup, error) {
	customGroup := database.CustomGroup{
		ID:        uuid.New(),
		SchoolID:  params.SchoolID,
		Name:      params.Name,
		CreatedBy: params.CreatedBy,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	f.groups[customGroup.ID] = customGroup
	f.members[customGroup.ID] = map[uuid.UUID]database.CustomGroupMember{
		params.CreatedBy: {ID: uuid.New(), GroupID: customGroup.ID, UserID: params.CreatedBy, IsAdmin: true},
	}
	return customGroup, nil
}

func (f *fakeStore) UpdateCustomGroupByID(ctx context.Context, id uuid.UUID, params database.UpdateCustomGroupParams) error {
	customGroup, ok := f.groups[id]
	if !ok {
		return database.ErrCustomGroupNotFound
	}
	if params.Name.IsSet {
		customGroup.Name = params.Name.Val
	}
	if params.IsActive.IsSet {
		customGroup.IsActive = params.IsActive.Val
	}
	f.groups[id] = customGroup
	return nil
}

func (f *fakeStore) CreateCustomGroupMember(ctx context.Context, params database.CreateCustomGroupMemberParams) (database.CustomGroupMember, error) {
	member := database.CustomGroupMember{
		ID:      uuid.New(),
		GroupID: params.GroupID,
		UserID:  params.UserID,
		IsAdmin: params.IsAdmin,
	}
	if f.members[params.GroupID] == nil {
		f.members[params.GroupID] = make(map[uuid.UUID]database.CustomGroupMember)
	}
	f.members[params.GroupID][params.UserID] = member
	return member, nil
}

func (f *fakeStore) UpdateCustomGroupMemberAdmin(ctx context.Context, groupID, userID uuid.UUID, isAdmin bool) error {
	member, ok := f.members[groupID][userID]
	if !ok {
		return database.ErrCustomGroupMemberNotFound
	}
	member.IsAdmin = isAdmin
	f.members[groupID][userID] = member
	return nil
}

func (f *fakeStore) DeleteCustomGroupMember(ctx context.Context, groupID, userID uuid.UUID) error {
	delete(f.members[groupID], userID)
	return nil
}

func (f *fakeStore) ListCustomGroupsByMember(ctx context.Context, schoolID, userID uuid.UUID) ([]database.CustomGroup, error) {
	var result []database.CustomGroup
	for groupID, members := range f.members {
		if _, ok := members[userID]; !ok {
			continue
		}
		customGroup := f.groups[groupID]
		if customGroup.IsActive && customGroup.SchoolID == schoolID {
			result = append(result, customGroup)
		}
	}
	return result, nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error) {
	user, ok := f.users[id]
	if !ok {
		return database.User{}, database.ErrUserNotFound
	}
	return user, nil
}

func TestGuard_CrossSchoolAlwaysFails(t *testing.T) {
	otherSchool := uuid.MustParse("deadbeef-36a2-4d6d-9f66-53b6d7f2a999")

	store := newFakeStore()
	guard := group.NewGuard(group.NewDeriver(&fakeResolver{school: activeSchool()}), store)

	user := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: org.RoleStaff}

	// Even a matching membership row in a foreign-school group must not
	// open the door.
	foreign, err := store.CreateCustomGroup(context.Background(), database.CreateCustomGroupParams{
		SchoolID:  otherSchool,
		Name:      "foreign",
		CreatedBy: user.ID,
	})
	require.NoError(t, err)

	ids := []group.Identifier{
		group.School{School: otherSchool},
		group.Class{School: otherSchool, Class: 3},
		group.Custom{School: otherSchool, Group: foreign.ID},
	}
	for _, id := range ids {
		assert.ErrorIs(t, guard.AssertSchoolScope(id, user), group.ErrCrossSchoolAccess)
		assert.ErrorIs(t, guard.CanSendMessage(context.Background(), id, user), group.ErrCrossSchoolAccess)
	}
}

func TestGuard_SchoolGroupOpenToAllRoles(t *testing.T) {
	store := newFakeStore()
	guard := group.NewGuard(group.NewDeriver(&fakeResolver{school: activeSchool()}), store)

	id := group.School{School: testSchoolID}
	for _, role := range []org.Role{org.RoleStudent, org.RoleTeacher, org.RoleParent, org.RoleStaff} {
		user := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: role}
		assert.NoError(t, guard.CanSendMessage(context.Background(), id, user), "role %s", role)
	}
}

func TestGuard_AutoGroupNonMemberDenied(t *testing.T) {
	store := newFakeStore()
	guard := group.NewGuard(group.NewDeriver(&fakeResolver{
		school:    activeSchool(),
		enrollErr: org.ErrNotEnrolled,
	}), store)

	student := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: org.RoleStudent}
	id := group.Class{School: testSchoolID, Class: 3}

	member, err := guard.IsMember(context.Background(), id, student)
	require.NoError(t, err)
	assert.False(t, member)
	assert.ErrorIs(t, guard.CanSendMessage(context.Background(), id, student), group.ErrForbidden)
}

func TestGuard_CustomGroupMembership(t *testing.T) {
	store := newFakeStore()
	guard := group.NewGuard(group.NewDeriver(&fakeResolver{school: activeSchool()}), store)

	creator := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: org.RoleTeacher}
	outsider := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: org.RoleStudent}

	customGroup, err := store.CreateCustomGroup(context.Background(), database.CreateCustomGroupParams{
		SchoolID:  testSchoolID,
		Name:      "science club",
		CreatedBy: creator.ID,
	})
	require.NoError(t, err)

	id := group.Custom{School: testSchoolID, Group: customGroup.ID}

	member, err := guard.IsMember(context.Background(), id, creator)
	require.NoError(t, err)
	assert.True(t, member)
	assert.NoError(t, guard.CanSendMessage(context.Background(), id, creator))

	member, err = guard.IsMember(context.Background(), id, outsider)
	require.NoError(t, err)
	assert.False(t, member)
	assert.ErrorIs(t, guard.CanSendMessage(context.Background(), id, outsider), group.ErrForbidden)
}

func TestGuard_DeactivatedCustomGroupNotFound(t *testing.T) {
	store := newFakeStore()
	guard := group.NewGuard(group.NewDeriver(&fakeResolver{school: activeSchool()}), store)

	creator := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: org.RoleTeacher}
	customGroup, err := store.CreateCustomGroup(context.Background(), database.CreateCustomGroupParams{
		SchoolID:  testSchoolID,
		Name:      "gone",
		CreatedBy: creator.ID,
	})
	require.NoError(t, err)

	deactivated := customGroup
	deactivated.IsActive = false
	store.groups[customGroup.ID] = deactivated

	id := group.Custom{School: testSchoolID, Group: customGroup.ID}
	_, err = guard.IsMember(context.Background(), id, creator)
	assert.ErrorIs(t, err, group.ErrNotFound)
}

func TestGuard_UnknownCustomGroupNotFound(t *testing.T) {
	store := newFakeStore()
	guard := group.NewGuard(group.NewDeriver(&fakeResolver{school: activeSchool()}), store)

	user := org.User{ID: uuid.New(), SchoolID: testSchoolID, Role: org.RoleStaff}
	id := group.Custom{School: testSchoolID, Group: uuid.New()}

	_, err := guard.IsMember(context.Background(), id, user)
	assert.ErrorIs(t, err, group.ErrNotFound)
}
