//go:build windows

package auth

// CheckPermissions is a no-op on windows; ACLs are inherited from the
// profile directory.
func (s *DigestStore) CheckPermissions() error {
	return nil
}
