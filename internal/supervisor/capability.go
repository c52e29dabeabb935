package supervisor

import "runtime"

// supervisedPlatforms are the hosts where the main pipeline runs as a
// restartable child process.
var supervisedPlatforms = map[string]bool{
	"linux":  true,
	"darwin": true,
}

// Capability describes what the host supports. It is resolved once at
// startup and injected wherever behaviour depends on the platform.
type Capability struct {
	// Platform is the GOOS value the capability was derived from.
	Platform string

	// Supervise reports whether background process supervision with
	// restart-on-change is available.
	Supervise bool
}

// Detect returns the capability of the running host.
func Detect() Capability {
	return ForPlatform(runtime.GOOS)
}

// ForPlatform returns the capability of the named GOOS.
func ForPlatform(goos string) Capability {
	return Capability{Platform: goos, Supervise: supervisedPlatforms[goos]}
}
