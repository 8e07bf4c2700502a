// Package fileutil provides verified file copies for publish steps that may
// not produce corrupt output.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// CopyVerified copies src to dst and confirms the bytes on disk match the
// source: the source is hashed while copying, then dst is read back and
// compared by size and SHA-256 digest. dst is removed when verification
// fails, so callers never publish a corrupt copy.
func CopyVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	want := sha256.New()
	written, err := io.Copy(out, io.TeeReader(in, want))
	if err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("flush destination: %w", err)
	}

	if err := verify(dst, written, want.Sum(nil)); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

// verify re-reads path from disk and checks it against the expected size and
// digest.
func verify(path string, wantSize int64, wantSum []byte) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reopen for verification: %w", err)
	}
	defer file.Close()

	got := sha256.New()
	size, err := io.Copy(got, file)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	if size != wantSize {
		return fmt.Errorf("size mismatch after copy: wrote %d bytes, read back %d", wantSize, size)
	}
	if !bytes.Equal(got.Sum(nil), wantSum) {
		return fmt.Errorf("checksum mismatch after copy")
	}
	return nil
}
