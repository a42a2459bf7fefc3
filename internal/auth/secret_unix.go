//go:build !windows

package auth

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CheckPermissions warns about group/other access on the digest file.
// Returns an error describing the offending mode bits, or nil.
func (s *DigestStore) CheckPermissions() error {
	var st unix.Stat_t
	if err := unix.Stat(s.path, &st); err != nil {
		return nil // missing file handled by Load
	}
	if st.Mode&0077 != 0 {
		return fmt.Errorf("digest file %s has permissive mode %04o, want 0600", s.path, st.Mode&0777)
	}
	return nil
}
