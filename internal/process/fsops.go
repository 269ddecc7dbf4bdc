package process

import (
	"fmt"
	"os"
)

// The helpers below are the filesystem side effects of a build. Like Run,
// they only print what they would do in pretend mode.

// MkdirAll creates dir and its parents.
func (r *Runner) MkdirAll(dir string) error {
	if r.Pretend {
		r.printer().PrintCommand([]string{"mkdir", "-p", dir}, "", nil, true)
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

// RemoveAll deletes path recursively.
func (r *Runner) RemoveAll(path string) error {
	r.printer().PrintCommand([]string{"rm", "-rf", path}, "", nil, false)
	if r.Pretend {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// CleanDirectory removes dir and recreates it empty.
func (r *Runner) CleanDirectory(dir string) error {
	if err := r.RemoveAll(dir); err != nil {
		return err
	}
	return r.MkdirAll(dir)
}

// WriteFile writes data to path, replacing any previous content.
func (r *Runner) WriteFile(path string, data []byte) error {
	if r.Pretend {
		r.printer().Debugf("Would write %s\n", path)
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
