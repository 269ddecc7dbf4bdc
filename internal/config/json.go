package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// DefaultConfigPath is $XDG_CONFIG_HOME/cheribuild.json.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "cheribuild.json")
}

// stripComments blanks out lines starting with # or // so that line numbers
// in decode errors still match the file.
func stripComments(data []byte) []byte {
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		trimmed := bytes.TrimSpace(line)
		if bytes.HasPrefix(trimmed, []byte("#")) || bytes.HasPrefix(trimmed, []byte("//")) {
			lines[i] = nil
		}
	}
	return bytes.Join(lines, []byte("\n"))
}

func (s *Store) loadJSON(path string, explicit bool) {
	s.jsonPath = path
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			s.Debugf("Config file %s does not exist, using defaults\n", path)
			return
		}
		s.Warn((&ConfigFileWarning{Path: path, Err: err}).Error())
		return
	}
	data = stripComments(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		s.Warn((&ConfigFileWarning{Path: path, Err: err}).Error())
		return
	}
	s.json = parsed
}

// LoadedConfigPath returns the JSON file Load tried to read.
func (s *Store) LoadedConfigPath() string { return s.jsonPath }

// lookupJSON finds key either as a flat entry or by walking nested objects
// split on "/". A JSON null counts as absent.
func (s *Store) lookupJSON(key string) (any, bool) {
	if v, ok := s.json[key]; ok && v != nil {
		return v, true
	}
	parts := strings.Split(key, "/")
	if len(parts) == 1 {
		return nil, false
	}
	var cur any = s.json
	for i, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		// a flat remainder under a nested prefix: {"llvm": {"cmake/options": ..}}
		if v, ok := m[strings.Join(parts[i:], "/")]; ok && i > 0 && v != nil {
			return v, true
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}
