package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
)

var tmpSeq atomic.Uint64

// tempName returns a sibling path of dest that no other writer in this or
// another process will pick.
func tempName(dest string) string {
	return fmt.Sprintf("%s.%d.%d.tmp", dest, os.Getpid(), tmpSeq.Add(1))
}

// writeTemp writes data to a new temporary file in dir and returns its path.
// The file is synced and closed before returning.
func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// publishFile makes dest refer to the bytes of src.
//
// A hard link is staged next to dest and renamed over it, so dest is
// replaced atomically. When linking is impossible (different devices, or a
// file system without links) the bytes are copied to the staging path
// instead.
func publishFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("publish %s: %w", dest, err)
	}

	if same, err := sameFile(src, dest); err == nil && same {
		return nil
	}

	staged := tempName(dest)
	if err := os.Link(src, staged); err != nil {
		if err := copyFile(src, staged); err != nil {
			os.Remove(staged)
			return fmt.Errorf("publish %s: %w", dest, err)
		}
	}

	if err := os.Rename(staged, dest); err != nil {
		os.Remove(staged)
		return fmt.Errorf("publish %s: %w", dest, err)
	}
	return nil
}

// publishBytes writes data to dest atomically.
func publishBytes(data []byte, dest string) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("publish %s: %w", dest, err)
	}
	tmp, err := writeTemp(dir, data)
	if err != nil {
		return fmt.Errorf("publish %s: %w", dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish %s: %w", dest, err)
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func sameFile(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return os.SameFile(ai, bi), nil
}
