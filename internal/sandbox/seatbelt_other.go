//go:build !darwin

package sandbox

func userCacheDir() string {
	return userCacheDirFallback()
}
