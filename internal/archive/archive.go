// Package archive packs directory trees (the SDK sysroot) into compressed
// tarballs.
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// Format is the compression applied to the tar stream.
type Format int

const (
	Gzip Format = iota
	Zstd
	XZ
)

// FormatFor picks the format from the archive name.
func FormatFor(name string) (Format, error) {
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return Gzip, nil
	case strings.HasSuffix(name, ".tar.zst"):
		return Zstd, nil
	case strings.HasSuffix(name, ".tar.xz"):
		return XZ, nil
	}
	return 0, fmt.Errorf("unsupported archive type: %s", name)
}

func compressor(f Format, w io.Writer) (io.WriteCloser, error) {
	switch f {
	case Gzip:
		return pgzip.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	case XZ:
		return xz.NewWriter(w)
	}
	return nil, fmt.Errorf("unknown archive format %d", f)
}

// Create writes the contents of srcDir to destPath. Entries are relative to
// srcDir and owned by root. The archive is written to a temporary file and
// renamed into place, so a failed run never leaves a truncated archive.
func Create(ctx context.Context, srcDir, destPath string) (err error) {
	format, err := FormatFor(destPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".archive-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	cw, err := compressor(format, tmp)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)
	if err = addTree(ctx, tw, srcDir); err != nil {
		return fmt.Errorf("failed to add files to archive: %w", err)
	}
	if err = tw.Close(); err != nil {
		return err
	}
	if err = cw.Close(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), destPath)
}

func addTree(ctx context.Context, tw *tar.Writer, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		var linkTarget string
		if info.Mode()&os.ModeSymlink != 0 {
			linkTarget, err = os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
		}
		hdr, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "root", "root"
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

// List returns the entry names of an archive created by Create.
func List(path string) ([]string, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader
	switch format {
	case Gzip:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case Zstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case XZ:
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, err
		}
		r = xr
	}

	var names []string
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, hdr.Name)
	}
}
