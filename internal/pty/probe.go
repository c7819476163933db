//go:build linux || darwin

package pty

import (
	"strconv"
	"strings"
	"sync"

	"github.com/PiranhaCodes/ptyhost/internal/sys"
)

// legacySelectDarwinMajor is the last Darwin kernel major (Mac OS X 10.6)
// whose poll(2) does not work on pty masters.
const legacySelectDarwinMajor = 10

// ProbeBackend chooses a backend from the kernel name and release as
// reported by uname.
func ProbeBackend(sysname, release string) Backend {
	if !strings.EqualFold(sysname, "Darwin") {
		return BackendPoll
	}
	major, _, _ := strings.Cut(release, ".")
	v, err := strconv.Atoi(major)
	if err != nil {
		return BackendPoll
	}
	if v <= legacySelectDarwinMajor {
		return BackendSelect
	}
	return BackendPoll
}

// HostBackend is the backend for this process. The host is probed on the
// first call and the answer never changes afterwards.
var HostBackend = sync.OnceValue(func() Backend {
	sysname, release, err := sys.Host{}.Uname()
	if err != nil {
		return BackendPoll
	}
	return ProbeBackend(sysname, release)
})
