package ldap

import (
	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
)

// ObjectSIDAttribute holds the binary security identifier of an AD object.
const ObjectSIDAttribute = "objectSid"

// entrySID returns the string form (S-1-5-21-...) of the entry's objectSid,
// or the empty string when the entry has none or it is malformed.
func entrySID(entry *ldap.Entry) string {
	if entry == nil {
		return ""
	}

	raw := entry.GetRawAttributeValue(ObjectSIDAttribute)

	// Revision, sub-authority count and 6-byte authority, then 4 bytes per sub-authority
	if len(raw) < 8 || len(raw) != 8+4*int(raw[1]) {
		return ""
	}

	return objectsid.Decode(raw).String()
}

// entryLogFields summarises a search entry for verbose logging.
func entryLogFields(entry *ldap.Entry) map[string]any {
	names := make([]string, 0, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		names = append(names, attr.Name)
	}

	fields := map[string]any{
		"entry_dn":   entry.DN,
		"attributes": names,
	}

	if sid := entrySID(entry); sid != "" {
		fields["object_sid"] = sid
	}
	if guid := entryGUID(entry); guid != "" {
		fields["object_guid"] = guid
	}

	return fields
}
