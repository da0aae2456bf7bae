//go:build unix && !linux

package supervisor

// descendants is not implemented off Linux; the process-group kill reaches
// every child that did not start its own group.
func descendants(int) []int {
	return nil
}
