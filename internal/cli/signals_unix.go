//go:build unix

package cli

import (
	"os"
	"syscall"
)

// shutdownSignals cancel the command context. SIGHUP arrives when the
// terminal closes; the supervised child sits in its own process group and
// would not receive it, so the supervisor must stop it on the way out.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}
