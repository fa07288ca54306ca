// Package tab owns the identifier that attributes event origin to one
// client session. The id persists across restarts of the same session
// directory and differs across sessions, mirroring how a browser tab keeps
// its identity across reloads but not across tabs.
package tab

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const idFileName = "tab_id"

// Store holds the session-scoped tab identifier.
type Store struct {
	id string
}

// NewEphemeral returns a store with a fresh identifier that is not
// persisted anywhere.
func NewEphemeral() *Store {
	return &Store{id: uuid.NewString()}
}

// NewPersistent loads the identifier from dir, generating and writing one
// on first use. Restarts pointing at the same dir reuse the same id.
func NewPersistent(dir string) (*Store, error) {
	path := filepath.Join(dir, idFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return &Store{id: id}, nil
		}
		// Corrupt file: fall through and regenerate.
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read tab id: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create tab id dir: %w", err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write tab id: %w", err)
	}
	return &Store{id: id}, nil
}

// TabID returns the session identifier.
func (s *Store) TabID() string {
	return s.id
}
