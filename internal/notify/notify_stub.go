//go:build !linux && !darwin

package notify

import "errors"

func newPlatformNotifier() (Notifier, error) {
	return nil, errors.New("no desktop notification channel on this platform")
}
