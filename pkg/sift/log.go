package sift

import (
	"sync/atomic"

	"github.com/menta2k/siftkit/internal/logging"
)

var pkgLogger atomic.Pointer[logging.Logger]

// SetLogger sets the logger used for package-level diagnostics such as
// Feature.Equal mismatch reports. A nil logger silences them.
func SetLogger(l *logging.Logger) {
	if l == nil {
		l = logging.NoopLogger()
	}
	pkgLogger.Store(l)
}

func diagLogger() *logging.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	l := logging.NoopLogger()
	pkgLogger.CompareAndSwap(nil, l)
	return pkgLogger.Load()
}
