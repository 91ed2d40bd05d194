//go:build !linux

package sandbox

import "github.com/bpicori/warden/internal/toolerr"

func LandlockABIVersion() (int, error) {
	return 0, toolerr.NotAvailable("Landlock requires Linux")
}

func landlockAvailable() bool { return false }

func RunLandlockHelper(_ []string) error {
	return toolerr.NotAvailable("Landlock requires Linux")
}
