// Package version exposes build metadata injected at link time.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = ""
)

func GetInfo() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
