package ldap

import (
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// ObjectGUIDAttribute holds the binary GUID of an AD object.
const ObjectGUIDAttribute = "objectGUID"

// entryGUID returns the canonical string form of the entry's objectGUID, or
// the empty string when the entry has none or it is malformed.
//
// Active Directory stores the first three GUID fields little-endian.
func entryGUID(entry *ldap.Entry) string {
	if entry == nil {
		return ""
	}

	raw := entry.GetRawAttributeValue(ObjectGUIDAttribute)
	if len(raw) != 16 {
		return ""
	}

	b := make([]byte, 16)
	b[0], b[1], b[2], b[3] = raw[3], raw[2], raw[1], raw[0]
	b[4], b[5] = raw[5], raw[4]
	b[6], b[7] = raw[7], raw[6]
	copy(b[8:], raw[8:])

	id, err := uuid.FromBytes(b)
	if err != nil {
		return ""
	}
	return id.String()
}
