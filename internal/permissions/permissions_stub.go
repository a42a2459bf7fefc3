//go:build !darwin && !linux

package permissions

type systemOracle struct{}

func (systemOracle) Granted() bool { return false }
func (systemOracle) Request() bool { return false }

func (systemOracle) Instructions() string {
	return "input interception is not supported on this platform"
}
