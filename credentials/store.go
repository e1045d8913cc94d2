package credentials

import (
	"github.com/jrsteele09/go-card-console/identity"
)

// Entry names. The three entries are always written and cleared together.
const (
	EntryAccessToken  = "access_token"
	EntryRefreshToken = "refresh_token"
	EntryProfile      = "profile.json"
)

// Entries lists every key a Store persists.
var Entries = []string{EntryAccessToken, EntryRefreshToken, EntryProfile}

// SessionRecord is the durable projection of the current identity and its tokens.
type SessionRecord struct {
	Identity identity.Identity
	Tokens   identity.TokenPair
}

// Store is a thin durable map for the current session record.
// Load never reports errors: a missing, partial or unparsable record is absent.
type Store interface {
	Save(record SessionRecord) error
	Load() (*SessionRecord, bool)
	Clear() error
}
