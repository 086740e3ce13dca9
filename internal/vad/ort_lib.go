package vad

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ResolveORTLibPath returns the path to the ONNX Runtime shared library.
// An explicit path wins; otherwise lib/<goos>-<goarch>/ and
// ../lib/<goos>-<goarch>/ next to the executable are searched.
func ResolveORTLibPath(explicit string) (string, error) {
	if explicit != "" {
		info, err := os.Stat(explicit)
		if err != nil {
			return "", fmt.Errorf("%w: ort library %q does not exist", ErrUnavailable, explicit)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%w: ort library %q is a directory", ErrUnavailable, explicit)
		}
		return explicit, nil
	}

	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("%w: locate executable: %v", ErrUnavailable, err)
	}
	if path, ok := findORTLib(filepath.Dir(exePath)); ok {
		return path, nil
	}
	return "", fmt.Errorf("%w: ort library %s not found next to executable (set ORT_LIB_PATH)", ErrUnavailable, ortLibFilename())
}

func findORTLib(baseDir string) (string, bool) {
	platform := runtime.GOOS + "-" + runtime.GOARCH
	for _, rel := range []string{
		filepath.Join("lib", platform, ortLibFilename()),
		filepath.Join("..", "lib", platform, ortLibFilename()),
	} {
		path := filepath.Join(baseDir, rel)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func ortLibFilename() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}
