//go:build !unix

package tool

import "os/exec"

// configureProcessGroup keeps exec's default cancellation (kill the direct
// child) on platforms without process groups.
func configureProcessGroup(cmd *exec.Cmd) {}
