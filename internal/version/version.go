package version

import (
	"fmt"
	"runtime"
	"time"
)

var (
	Version   = "dev"                           // ex: v0.1.0
	Commit    = "none"                          // ex: abcd123
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2026-08-11T18:42:00Z
	GoVersion = runtime.Version()               // go version
)

// String returns the one-line build description logged at startup.
func String() string {
	return fmt.Sprintf("restpub %s (%s, built %s, %s)", Version, Commit, BuildDate, GoVersion)
}
