package group

import (
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// The canonical key format is a closed set of percent-encoded key=value
// pairs joined by '&', keys sorted ascending. It doubles as the socket
// room name and the message partition key, so two identifiers are the
// same group exactly when their encoded forms are byte-equal.
const (
	fieldDiscriminant = "gd" // "a" auto, "c" custom
	fieldSchool       = "sc"
	fieldID           = "id" // class id (auto) or group id (custom)
	fieldType         = "ty" // auto kind
	fieldBatch        = "ba"
	fieldSection      = "se"
	fieldSubject      = "su"
)

const (
	discriminantAuto   = "a"
	discriminantCustom = "c"

	typeSchool  = "sc"
	typeClass   = "cl"
	typeSection = "se"
	typeSubject = "su"
)

var ErrInvalidIdentifier = errors.New("group: invalid identifier")

// Identifier is the closed set of group identities. Implementations are
// the only values that can name a conversation; adding a kind means
// extending every type switch over this interface.
type Identifier interface {
	// SchoolID is the school the group belongs to, for scope checks.
	SchoolID() uuid.UUID
	// Encode returns the canonical key.
	Encode() string

	sealed()
}

// Custom is an explicitly created group with persisted membership.
type Custom struct {
	School uuid.UUID
	Group  uuid.UUID
}

// School is the implicit whole-school broadcast group.
type School struct {
	School uuid.UUID
}

// Class is the implicit group of one class across its sections.
type Class struct {
	School uuid.UUID
	Class  int64
}

// Section is the implicit group of one section of a class.
type Section struct {
	School  uuid.UUID
	Class   int64
	Section int64
}

// Subject is the implicit group of everyone attached to a subject in a
// batch: the teachers taking its periods and the students scheduled for
// them.
type Subject struct {
	School  uuid.UUID
	Subject uuid.UUID
	Batch   int64
}

func (c Custom) SchoolID() uuid.UUID  { return c.School }
func (s School) SchoolID() uuid.UUID  { return s.School }
func (c Class) SchoolID() uuid.UUID   { return c.School }
func (s Section) SchoolID() uuid.UUID { return s.School }
func (s Subject) SchoolID() uuid.UUID { return s.School }

func (Custom) sealed()  {}
func (School) sealed()  {}
func (Class) sealed()   {}
func (Section) sealed() {}
func (Subject) sealed() {}

func (c Custom) Encode() string {
	return encodePairs(map[string]string{
		fieldDiscriminant: discriminantCustom,
		fieldID:           c.Group.String(),
		fieldSchool:       c.School.String(),
	})
}

func (s School) Encode() string {
	return encodePairs(map[string]string{
		fieldDiscriminant: discriminantAuto,
		fieldSchool:       s.School.String(),
		fieldType:         typeSchool,
	})
}

func (c Class) Encode() string {
	return encodePairs(map[string]string{
		fieldDiscriminant: discriminantAuto,
		fieldID:           strconv.FormatInt(c.Class, 10),
		fieldSchool:       c.School.String(),
		fieldType:         typeClass,
	})
}

func (s Section) Encode() string {
	return encodePairs(map[string]string{
		fieldDiscriminant: discriminantAuto,
		fieldID:           strconv.FormatInt(s.Class, 10),
		fieldSchool:       s.School.String(),
		fieldSection:      strconv.FormatInt(s.Section, 10),
		fieldType:         typeSection,
	})
}

func (s Subject) Encode() string {
	return encodePairs(map[string]string{
		fieldBatch:        strconv.FormatInt(s.Batch, 10),
		fieldDiscriminant: discriminantAuto,
		fieldSchool:       s.School.String(),
		fieldSubject:      s.Subject.String(),
		fieldType:         typeSubject,
	})
}

func encodePairs(pairs map[string]string) string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(pairs[k]))
	}
	return b.String()
}

// Decode parses a canonical key back into an Identifier. Empty input,
// duplicate keys, keys outside the closed set, missing fields and
// malformed values all yield ErrInvalidIdentifier.
func Decode(s string) (Identifier, error) {
	if s == "" {
		return nil, ErrInvalidIdentifier
	}

	pairs := make(map[string]string, 4)
	for _, part := range strings.Split(s, "&") {
		rawKey, rawVal, found := strings.Cut(part, "=")
		if !found {
			return nil, ErrInvalidIdentifier
		}
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, ErrInvalidIdentifier
		}
		val, err := url.QueryUnescape(rawVal)
		if err != nil {
			return nil, ErrInvalidIdentifier
		}
		switch key {
		case fieldDiscriminant, fieldSchool, fieldID, fieldType, fieldBatch, fieldSection, fieldSubject:
		default:
			return nil, ErrInvalidIdentifier
		}
		if _, dup := pairs[key]; dup {
			return nil, ErrInvalidIdentifier
		}
		pairs[key] = val
	}

	switch pairs[fieldDiscriminant] {
	case discriminantCustom:
		return decodeCustom(pairs)
	case discriminantAuto:
		return decodeAuto(pairs)
	default:
		return nil, ErrInvalidIdentifier
	}
}

func decodeCustom(pairs map[string]string) (Identifier, error) {
	if len(pairs) != 3 {
		return nil, ErrInvalidIdentifier
	}
	school, err := parseUUID(pairs, fieldSchool)
	if err != nil {
		return nil, err
	}
	groupID, err := parseUUID(pairs, fieldID)
	if err != nil {
		return nil, err
	}
	return Custom{School: school, Group: groupID}, nil
}

func decodeAuto(pairs map[string]string) (Identifier, error) {
	school, err := parseUUID(pairs, fieldSchool)
	if err != nil {
		return nil, err
	}

	switch pairs[fieldType] {
	case typeSchool:
		if len(pairs) != 3 {
			return nil, ErrInvalidIdentifier
		}
		return School{School: school}, nil

	case typeClass:
		if len(pairs) != 4 {
			return nil, ErrInvalidIdentifier
		}
		classID, err := parseInt(pairs, fieldID)
		if err != nil {
			return nil, err
		}
		return Class{School: school, Class: classID}, nil

	case typeSection:
		if len(pairs) != 5 {
			return nil, ErrInvalidIdentifier
		}
		classID, err := parseInt(pairs, fieldID)
		if err != nil {
			return nil, err
		}
		sectionID, err := parseInt(pairs, fieldSection)
		if err != nil {
			return nil, err
		}
		return Section{School: school, Class: classID, Section: sectionID}, nil

	case typeSubject:
		if len(pairs) != 5 {
			return nil, ErrInvalidIdentifier
		}
		subjectID, err := parseUUID(pairs, fieldSubject)
		if err != nil {
			return nil, err
		}
		batchID, err := parseInt(pairs, fieldBatch)
		if err != nil {
			return nil, err
		}
		return Subject{School: school, Subject: subjectID, Batch: batchID}, nil

	default:
		return nil, ErrInvalidIdentifier
	}
}

func parseUUID(pairs map[string]string, key string) (uuid.UUID, error) {
	raw, ok := pairs[key]
	if !ok {
		return uuid.Nil, ErrInvalidIdentifier
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidIdentifier
	}
	// uuid.Parse tolerates braces, URNs and uppercase; the canonical key
	// admits exactly one spelling.
	if raw != id.String() {
		return uuid.Nil, ErrInvalidIdentifier
	}
	return id, nil
}

// parseInt accepts plain non-negative decimal only; signs, blanks and
// non-digit characters are rejected so encoding stays canonical.
func parseInt(pairs map[string]string, key string) (int64, error) {
	raw, ok := pairs[key]
	if !ok {
		return 0, ErrInvalidIdentifier
	}
	n, err := strconv.ParseUint(raw, 10, 63)
	if err != nil {
		return 0, ErrInvalidIdentifier
	}
	return int64(n), nil
}
