package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrder(t *testing.T) {
	require.True(t, SeverityCritical.AtLeast(SeverityError))
	require.True(t, SeverityError.AtLeast(SeverityError))
	require.False(t, SeverityWarn.AtLeast(SeverityError))
	require.False(t, SeverityInfo.AtLeast(SeverityWarn))
}

func TestSeverityBlocking(t *testing.T) {
	assert.True(t, SeverityCritical.Blocking())
	assert.True(t, SeverityError.Blocking())
	assert.False(t, SeverityWarn.Blocking())
	assert.False(t, SeverityInfo.Blocking())
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, MaxSeverity([]Severity{
		SeverityWarn, SeverityCritical, SeverityInfo,
	}))
	assert.Equal(t, Severity(""), MaxSeverity(nil))
}

func TestUnknownSeverityRanksBelowInfo(t *testing.T) {
	assert.False(t, Severity("BOGUS").AtLeast(SeverityInfo))
	assert.False(t, ValidSeverity(Severity("BOGUS")))
}

func TestFactLocation(t *testing.T) {
	assert.Equal(t, "apps/backend/src/main.ts",
		FileChange("git", "apps/backend/src/main.ts", ChangeModified).Location())
	assert.Equal(t, "apps/ios/View.swift",
		Heuristic("detector", "heuristics.ios.force-unwrap.ast", SeverityWarn, "", "", "apps/ios/View.swift").Location())
	assert.Equal(t, "core/gate",
		Dependency("depcruise", "core/gate", "core/rules").Location())
}

func TestInferPlatform(t *testing.T) {
	cases := map[string]Platform{
		"apps/ios/Presentation/View.swift":      PlatformIOS,
		"Shared/Model.swift":                    PlatformIOS,
		"apps/backend/src/main.ts":              PlatformBackend,
		"apps/frontend/src/App.tsx":             PlatformFrontend,
		"apps/android/app/src/main/Feature.kt":  PlatformAndroid,
		"build.gradle.kts":                      PlatformAndroid,
		"docs/readme.md":                        PlatformGeneric,
		`apps\backend\src\windows.ts`:           PlatformBackend,
		"apps/IOS/uppercase-prefix-still.swift": PlatformIOS,
	}
	for path, want := range cases {
		assert.Equal(t, want, InferPlatform(path), "path %q", path)
	}
}
