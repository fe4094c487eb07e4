package group_test

import (
	"fmt"
	"testing"

	"edbox/internal/group"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSchoolID  = uuid.MustParse("3f1c8e46-36a2-4d6d-9f66-53b6d7f2a111")
	testGroupID   = uuid.MustParse("7b35f2a8-9c41-4d0e-8a2f-1f4e5d6c7b22")
	testSubjectID = uuid.MustParse("9d2e4f68-1a3b-4c5d-8e7f-2a4b6c8d0e33")
)

func TestIdentifier_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		id   group.Identifier
	}{
		{name: "custom", id: group.Custom{School: testSchoolID, Group: testGroupID}},
		{name: "school", id: group.School{School: testSchoolID}},
		{name: "class", id: group.Class{School: testSchoolID, Class: 3}},
		{name: "class_zero", id: group.Class{School: testSchoolID, Class: 0}},
		{name: "section", id: group.Section{School: testSchoolID, Class: 3, Section: 1}},
		{name: "subject", id: group.Subject{School: testSchoolID, Subject: testSubjectID, Batch: 1}},
		{name: "subject_large_batch", id: group.Subject{School: testSchoolID, Subject: testSubjectID, Batch: 1 << 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.id.Encode()
			decoded, err := group.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
			assert.Equal(t, encoded, decoded.Encode())
		})
	}
}

func TestIdentifier_EncodeCanonicalForm(t *testing.T) {
	id := group.School{School: testSchoolID}
	assert.Equal(t, fmt.Sprintf("gd=a&sc=%s&ty=sc", testSchoolID), id.Encode())

	class := group.Class{School: testSchoolID, Class: 3}
	assert.Equal(t, fmt.Sprintf("gd=a&id=3&sc=%s&ty=cl", testSchoolID), class.Encode())
}

func TestIdentifier_EncodeInjective(t *testing.T) {
	ids := []group.Identifier{
		group.Custom{School: testSchoolID, Group: testGroupID},
		group.School{School: testSchoolID},
		group.Class{School: testSchoolID, Class: 3},
		group.Class{School: testSchoolID, Class: 4},
		group.Section{School: testSchoolID, Class: 3, Section: 1},
		group.Section{School: testSchoolID, Class: 1, Section: 3},
		group.Subject{School: testSchoolID, Subject: testSubjectID, Batch: 1},
		group.Subject{School: testSchoolID, Subject: testSubjectID, Batch: 2},
	}

	seen := make(map[string]group.Identifier)
	for _, id := range ids {
		key := id.Encode()
		prev, dup := seen[key]
		require.Falsef(t, dup, "identifiers %#v and %#v encode to the same key %q", prev, id, key)
		seen[key] = id
	}
}

func TestDecode_Rejections(t *testing.T) {
	school := testSchoolID.String()

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "garbage", input: "not a key"},
		{name: "missing_value", input: "gd"},
		{name: "unknown_key", input: fmt.Sprintf("gd=a&sc=%s&ty=sc&xx=1", school)},
		{name: "duplicate_key", input: fmt.Sprintf("gd=a&gd=a&sc=%s&ty=sc", school)},
		{name: "unknown_discriminant", input: fmt.Sprintf("gd=z&sc=%s&ty=sc", school)},
		{name: "missing_discriminant", input: fmt.Sprintf("sc=%s&ty=sc", school)},
		{name: "unknown_type", input: fmt.Sprintf("gd=a&sc=%s&ty=zz", school)},
		{name: "school_missing_school", input: "gd=a&ty=sc"},
		{name: "school_extra_field", input: fmt.Sprintf("ba=1&gd=a&sc=%s&ty=sc", school)},
		{name: "class_missing_id", input: fmt.Sprintf("gd=a&sc=%s&ty=cl", school)},
		{name: "class_negative_id", input: fmt.Sprintf("gd=a&id=-3&sc=%s&ty=cl", school)},
		{name: "class_signed_id", input: fmt.Sprintf("gd=a&id=+3&sc=%s&ty=cl", school)},
		{name: "class_non_numeric_id", input: fmt.Sprintf("gd=a&id=abc&sc=%s&ty=cl", school)},
		{name: "section_missing_section", input: fmt.Sprintf("gd=a&id=3&sc=%s&ty=se", school)},
		{name: "subject_missing_batch", input: fmt.Sprintf("gd=a&sc=%s&su=%s&ty=su", school, testSubjectID)},
		{name: "subject_malformed_subject", input: fmt.Sprintf("ba=1&gd=a&sc=%s&su=nope&ty=su", school)},
		{name: "custom_missing_group", input: fmt.Sprintf("gd=c&sc=%s", school)},
		{name: "custom_extra_field", input: fmt.Sprintf("gd=c&id=%s&sc=%s&ty=sc", testGroupID, school)},
		{name: "malformed_school_uuid", input: "gd=a&sc=not-a-uuid&ty=sc"},
		{name: "uppercase_uuid", input: fmt.Sprintf("gd=a&sc=%s&ty=sc", "3F1C8E46-36A2-4D6D-9F66-53B6D7F2A111")},
		{name: "braced_uuid", input: fmt.Sprintf("gd=a&sc={%s}&ty=sc", school)},
		{name: "bad_percent_escape", input: "gd=a&sc=%zz&ty=sc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := group.Decode(tt.input)
			assert.ErrorIs(t, err, group.ErrInvalidIdentifier)
		})
	}
}

func TestSet_DedupAndOrder(t *testing.T) {
	school := group.School{School: testSchoolID}
	class := group.Class{School: testSchoolID, Class: 3}
	subject := group.Subject{School: testSchoolID, Subject: testSubjectID, Batch: 1}

	set := group.NewSet()
	set.Add(subject)
	set.Add(class)
	set.Add(school)
	set.Add(class)

	assert.Equal(t, 3, set.Len())
	assert.True(t, set.Has(class))
	assert.True(t, set.HasKey(school.Encode()))

	sorted := set.Sorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, school, sorted[0])
	assert.Equal(t, class, sorted[1])
	assert.Equal(t, subject, sorted[2])
}
