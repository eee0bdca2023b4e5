package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SupportMediaExt checks if media ext is supported for upload
func SupportMediaExt(ext string) bool {
	switch ext {
	case ".mp4", ".mov", ".mkv", ".webm", ".avi", ".mp3", ".wav", ".m4a":
		return true
	}
	return false
}

// MakeFileName joins id and file name into an object store key
func MakeFileName(id, name string) string {
	if id == "" {
		return name
	}
	return id + "/" + name
}

// MakeValidateFileName sanitizes a user provided file name and prepends the media id.
// Directory parts and path traversal are dropped, spaces replaced, extension lowered.
func MakeValidateFileName(id, fileName string) (string, error) {
	fn := filepath.Base(filepath.Clean(fileName))
	if fn == "." || fn == ".." || fn == "/" || fn == "" {
		return "", fmt.Errorf("wrong file name '%s'", fileName)
	}
	fn = strings.ReplaceAll(fn, " ", "_")
	ext := filepath.Ext(fn)
	fn = strings.TrimSuffix(fn, ext) + strings.ToLower(ext)
	return MakeFileName(id, fn), nil
}

// ValidateObjectPath rejects path traversal and absolute object store paths
func ValidateObjectPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("absolute path '%s'", path)
	}
	for _, p := range strings.Split(path, "/") {
		if p == ".." {
			return fmt.Errorf("path traversal in '%s'", path)
		}
	}
	return nil
}

// ParamTrue - returns true if string param indicates true value
func ParamTrue(prm string) bool {
	return strings.ToLower(prm) == "true" || prm == "1"
}
