// Package fingerprint derives stable file identifiers from audio content.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const digestLength = 12

var unsafeRunes = regexp.MustCompile(`[^a-z0-9._-]+`)

// FileID computes the identifier used for state tracking and output
// directories: the sanitized filename stem joined with a short content
// digest. Two files with identical bytes and the same name always map to
// the same identifier, so reprocessing is idempotent.
func FileID(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for fingerprint: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", filepath.Base(path), err)
	}

	digest := hex.EncodeToString(hash.Sum(nil))[:digestLength]
	return Stem(path) + "-" + digest, nil
}

// Stem returns the sanitized filename without extension, safe for use in
// directory names and database keys.
func Stem(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.ToLower(strings.TrimSpace(stem))
	stem = unsafeRunes.ReplaceAllString(stem, "_")
	stem = strings.Trim(stem, "._-")
	if stem == "" {
		stem = "audio"
	}
	return stem
}
