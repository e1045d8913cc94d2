package filestore

import (
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-card-console/credentials"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Store implements credentials.Store as three files in one directory.
type Store struct {
	dir string
}

var _ credentials.Store = (*Store)(nil)

// New creates the directory (0700) if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("[filestore.New] directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "[filestore.New] create credentials directory")
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes each entry through a temp file and rename so readers never see
// a half written file. The profile goes last; it is the entry Load checks the
// others against.
func (s *Store) Save(record credentials.SessionRecord) error {
	entries, err := credentials.Encode(record)
	if err != nil {
		return err
	}
	for _, name := range []string{credentials.EntryAccessToken, credentials.EntryRefreshToken, credentials.EntryProfile} {
		if err := s.writeAtomic(name, entries[name]); err != nil {
			return errors.Wrapf(err, "[filestore.Save] write %s", name)
		}
	}
	return nil
}

func (s *Store) Load() (*credentials.SessionRecord, bool) {
	entries := make(map[string][]byte, len(credentials.Entries))
	for _, name := range credentials.Entries {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Err(err).Str("entry", name).Msg("failed to read credential entry")
			}
			return nil, false
		}
		entries[name] = data
	}

	record, err := credentials.Decode(entries)
	if err != nil {
		log.Warn().Err(err).Msg("discarding unreadable session record")
		return nil, false
	}
	return record, true
}

// Clear removes all entries. Missing files are not an error.
func (s *Store) Clear() error {
	var firstErr error
	for _, name := range credentials.Entries {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = errors.Wrapf(err, "[filestore.Clear] remove %s", name)
		}
	}
	return firstErr
}

func (s *Store) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(s.dir, name))
}
