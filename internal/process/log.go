package process

import (
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"
)

// CompressLog replaces path with path.xz and returns the new path.
func CompressLog(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	destPath := path + ".xz"
	dest, err := os.Create(destPath)
	if err != nil {
		return "", err
	}
	xzWriter, err := xz.NewWriter(dest)
	if err != nil {
		dest.Close()
		return "", err
	}
	if _, err := io.Copy(xzWriter, src); err != nil {
		xzWriter.Close()
		dest.Close()
		return "", fmt.Errorf("compressing %s: %w", path, err)
	}
	if err := xzWriter.Close(); err != nil {
		dest.Close()
		return "", err
	}
	if err := dest.Close(); err != nil {
		return "", err
	}
	return destPath, os.Remove(path)
}
