package enginetest

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// mediaFolder is an in-memory media folder. Names are stored in NFC so that
// differently composed spellings of one name collide.
type mediaFolder struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMediaFolder() *mediaFolder {
	return &mediaFolder{files: make(map[string][]byte)}
}

func (m *mediaFolder) get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[norm.NFC.String(name)]
	return data, ok
}

// add stores data under desired, or under the first free "base-N.ext" when
// desired is taken. Existing files are never overwritten.
func (m *mediaFolder) add(desired string, data []byte) (string, error) {
	name := normalizeMediaName(desired)
	if name == "" {
		return "", fmt.Errorf("invalid media file name %q", desired)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 1; ; n++ {
		if _, taken := m.files[candidate]; !taken {
			break
		}
		candidate = fmt.Sprintf("%s-%d%s", base, n, ext)
	}
	m.files[candidate] = append([]byte(nil), data...)
	return candidate, nil
}

// normalizeMediaName reduces a desired name to a safe NFC base name.
func normalizeMediaName(desired string) string {
	name := norm.NFC.String(desired)
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	switch name {
	case ".", "/", "..":
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
}
