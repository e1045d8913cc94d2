package credentials_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-card-console/credentials"
	"github.com/jrsteele09/go-card-console/identity"
	apperrors "github.com/jrsteele09/go-card-console/internal/errors"
	"github.com/jrsteele09/go-card-console/internal/utils"
	"github.com/stretchr/testify/require"
)

func testRecord() credentials.SessionRecord {
	return credentials.SessionRecord{
		Identity: identity.Identity{
			ID:               "u-1",
			Username:         "jane",
			DisplayName:      "Jane Doe",
			Role:             identity.RoleRegular,
			Permissions:      identity.PermissionsForRole(identity.RoleRegular),
			Language:         "en",
			SessionTimeoutMs: utils.Ptr(int64(900000)),
		},
		Tokens: identity.TokenPair{
			AccessToken:      "access",
			RefreshToken:     "refresh",
			TokenType:        "Bearer",
			ExpiresInSeconds: 3600,
			IssuedAt:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	record := testRecord()

	entries, err := credentials.Encode(record)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	decoded, err := credentials.Decode(entries)
	require.NoError(t, err)
	require.Equal(t, record, *decoded)
}

func TestEncodeRejectsIncompleteRecords(t *testing.T) {
	record := testRecord()
	record.Tokens.AccessToken = ""
	_, err := credentials.Encode(record)
	require.Error(t, err)

	record = testRecord()
	record.Identity.Role = "ROOT"
	_, err = credentials.Encode(record)
	require.Error(t, err)
}

func TestDecodeRejectsMalformedEntries(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(entries map[string][]byte)
	}{
		{"missing refresh token", func(e map[string][]byte) { delete(e, credentials.EntryRefreshToken) }},
		{"missing profile", func(e map[string][]byte) { delete(e, credentials.EntryProfile) }},
		{"profile not json", func(e map[string][]byte) { e[credentials.EntryProfile] = []byte("{") }},
		{"unknown profile field", func(e map[string][]byte) { e[credentials.EntryProfile] = []byte(`{"surprise":true}`) }},
		{"unstamped token", func(e map[string][]byte) { e[credentials.EntryAccessToken] = []byte("access") }},
		{"torn write", func(e map[string][]byte) {
			other, _ := credentials.Encode(testRecord())
			e[credentials.EntryAccessToken] = other[credentials.EntryAccessToken]
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := credentials.Encode(testRecord())
			require.NoError(t, err)
			tt.mutate(entries)

			_, err = credentials.Decode(entries)
			require.True(t, apperrors.Is(err, apperrors.ErrMalformedRecord))
		})
	}
}
