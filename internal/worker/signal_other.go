//go:build !unix

package worker

import (
	"errors"
	"os"
	"os/exec"
)

func configureProcAttr(*exec.Cmd) {}

// Without process groups there is no graceful signal; stdin EOF is the only
// polite request, so terminate is a no-op and kill does the work.
func terminateProcess(*os.Process) error {
	return nil
}

func killProcess(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	err := proc.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
