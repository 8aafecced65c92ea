package storage

import (
	"fmt"
	"strings"
)

// Separator delimits path segments.
const Separator = `\`

// CleanFolder normalizes a folder path: rooted, repeated separators
// collapsed, trailing separator stripped except for the bare root.
func CleanFolder(p string) (string, error) {
	segs, err := segments(p)
	if err != nil {
		return "", err
	}
	return Separator + strings.Join(segs, Separator), nil
}

// CleanFile normalizes a file path. A trailing separator is invalid.
func CleanFile(p string) (string, error) {
	if p == "" || strings.HasSuffix(p, Separator) {
		return "", fmt.Errorf("storage: invalid file path %q", p)
	}
	segs, err := segments(p)
	if err != nil {
		return "", err
	}
	if len(segs) == 0 {
		return "", fmt.Errorf("storage: invalid file path %q", p)
	}
	return Separator + strings.Join(segs, Separator), nil
}

func segments(p string) ([]string, error) {
	var out []string
	for _, s := range strings.Split(p, Separator) {
		switch s {
		case "":
			continue
		case ".", "..":
			return nil, fmt.Errorf("storage: relative segment in path %q", p)
		}
		if strings.ContainsAny(s, "/\x00") {
			return nil, fmt.Errorf("storage: invalid character in path %q", p)
		}
		out = append(out, s)
	}
	return out, nil
}

// Join appends name to folder.
func Join(folder, name string) string {
	if strings.HasSuffix(folder, Separator) {
		return folder + name
	}
	return folder + Separator + name
}

// Split returns the folder and the last segment of a clean file path.
func Split(p string) (folder, name string) {
	i := strings.LastIndex(p, Separator)
	if i <= 0 {
		return Separator, p[i+1:]
	}
	return p[:i], p[i+1:]
}

// DisplayName returns the last segment of p without its extension.
func DisplayName(p string) string {
	_, name := Split(p)
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}
