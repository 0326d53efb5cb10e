package constants

import "strings"

// AllowedExtensions holds the file extensions accepted for extraction.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// MaxUploadMBDefault caps a single uploaded file unless overridden by config.
const MaxUploadMBDefault = 25

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether a filename's extension is accepted.
func IsAllowedExt(name string) bool {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return false
	}
	_, ok := AllowedExtensions[NormalizeExt(name[i:])]
	return ok
}
