package facts

import "strings"

// Platform groups findings and suppressions by the part of the monorepo
// a file belongs to.
type Platform string

const (
	PlatformIOS      Platform = "ios"
	PlatformAndroid  Platform = "android"
	PlatformBackend  Platform = "backend"
	PlatformFrontend Platform = "frontend"
	PlatformGeneric  Platform = "generic"
)

// InferPlatform maps a file path onto a platform using path prefixes and
// well-known extensions. Unrecognized paths map to generic.
func InferPlatform(filePath string) Platform {
	file := strings.ToLower(strings.ReplaceAll(filePath, "\\", "/"))
	switch {
	case strings.HasPrefix(file, "apps/ios/") || strings.HasSuffix(file, ".swift"):
		return PlatformIOS
	case strings.HasPrefix(file, "apps/backend/"):
		return PlatformBackend
	case strings.HasPrefix(file, "apps/frontend/"):
		return PlatformFrontend
	case strings.HasPrefix(file, "apps/android/") ||
		strings.HasSuffix(file, ".kt") || strings.HasSuffix(file, ".kts"):
		return PlatformAndroid
	default:
		return PlatformGeneric
	}
}
