package project

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

const configureStamp = ".cheribuild-configure"

// configureFingerprint hashes the configure command line and environment.
// A change means the existing configuration is stale.
func configureFingerprint(argv []string, env map[string]string) string {
	var b strings.Builder
	for _, a := range argv {
		b.WriteString(a)
		b.WriteByte(0)
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k + "=" + env[k])
		b.WriteByte(0)
	}
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func stampPath(buildDir string) string {
	return filepath.Join(buildDir, configureStamp)
}

// stampMatches reports whether the stored fingerprint equals want. A
// missing stamp matches so that build directories configured by hand are
// not reconfigured.
func stampMatches(buildDir, want string) bool {
	data, err := os.ReadFile(stampPath(buildDir))
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(data)) == want
}
