//go:build darwin

package sandbox

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// userCacheDir asks confstr(_CS_DARWIN_USER_CACHE_DIR) through getconf,
// since the value is not exposed without cgo.
var userCacheDir = sync.OnceValue(func() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "/usr/bin/getconf", "DARWIN_USER_CACHE_DIR").Output()
	if err == nil {
		if dir := strings.TrimSpace(string(out)); dir != "" {
			return strings.TrimSuffix(dir, "/")
		}
	}
	return userCacheDirFallback()
})
