package credentials

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-card-console/internal/errors"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-card-console/identity"
)

// storedProfile is the serialized user profile entry. It carries the token
// metadata so the token entries themselves stay opaque strings.
type storedProfile struct {
	Generation       string            `json:"generation"`
	Identity         identity.Identity `json:"user"`
	TokenType        string            `json:"tokenType,omitempty"`
	ExpiresInSeconds int64             `json:"expiresIn"`
	IssuedAt         time.Time         `json:"issuedAt"`
}

// Encode splits a record into its three entries. Every entry is stamped with
// the same generation so a reader racing a writer can tell the entries apart.
func Encode(record SessionRecord) (map[string][]byte, error) {
	if err := record.Identity.Validate(); err != nil {
		return nil, errors.Wrap(err, "[credentials.Encode] invalid identity")
	}
	if record.Tokens.AccessToken == "" {
		return nil, errors.New("[credentials.Encode] access token is required")
	}

	generation := uuid.NewString()
	profile, err := json.Marshal(storedProfile{
		Generation:       generation,
		Identity:         record.Identity,
		TokenType:        record.Tokens.TokenType,
		ExpiresInSeconds: record.Tokens.ExpiresInSeconds,
		IssuedAt:         record.Tokens.IssuedAt.UTC(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[credentials.Encode] marshal profile")
	}

	return map[string][]byte{
		EntryAccessToken:  stamp(generation, record.Tokens.AccessToken),
		EntryRefreshToken: stamp(generation, record.Tokens.RefreshToken),
		EntryProfile:      profile,
	}, nil
}

// Decode rebuilds a record from its entries, failing with ErrMalformedRecord
// on any missing, unparsable or mismatched entry.
func Decode(entries map[string][]byte) (*SessionRecord, error) {
	for _, name := range Entries {
		if _, ok := entries[name]; !ok {
			return nil, apperrors.Wrapf(apperrors.ErrMalformedRecord, "missing entry %s", name)
		}
	}

	var profile storedProfile
	dec := json.NewDecoder(bytes.NewReader(entries[EntryProfile]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&profile); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrMalformedRecord, "profile: %v", err)
	}
	if err := profile.Identity.Validate(); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrMalformedRecord, "profile: %v", err)
	}

	accessGen, accessToken, ok := unstamp(entries[EntryAccessToken])
	if !ok || accessToken == "" {
		return nil, apperrors.Wrapf(apperrors.ErrMalformedRecord, "access token entry")
	}
	refreshGen, refreshToken, ok := unstamp(entries[EntryRefreshToken])
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrMalformedRecord, "refresh token entry")
	}
	if accessGen != profile.Generation || refreshGen != profile.Generation {
		return nil, apperrors.Wrapf(apperrors.ErrMalformedRecord, "generation mismatch")
	}

	return &SessionRecord{
		Identity: profile.Identity,
		Tokens: identity.TokenPair{
			AccessToken:      accessToken,
			RefreshToken:     refreshToken,
			TokenType:        profile.TokenType,
			ExpiresInSeconds: profile.ExpiresInSeconds,
			IssuedAt:         profile.IssuedAt,
		},
	}, nil
}

func stamp(generation, value string) []byte {
	return []byte(generation + "\n" + value)
}

func unstamp(data []byte) (generation, value string, ok bool) {
	generation, value, ok = strings.Cut(string(data), "\n")
	if !ok {
		return "", "", false
	}
	if _, err := uuid.Parse(generation); err != nil {
		return "", "", false
	}
	return generation, value, true
}
