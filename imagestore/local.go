package imagestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warp/attendance-engine/attendance"
)

// Local writes images below a directory and returns URLs under baseURL.
type Local struct {
	dir     string
	baseURL string
}

var _ attendance.ImageStore = (*Local)(nil)

// NewLocal creates dir if needed.
func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image dir: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the root directory.
func (l *Local) Dir() string { return l.dir }

func (l *Local) Store(ctx context.Context, employeeID string, kind attendance.ImageKind, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := Normalize(image, MaxWidth)
	if err != nil {
		return "", err
	}

	name := ObjectName(employeeID, kind)
	full := filepath.Join(l.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create image dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return l.baseURL + "/" + name, nil
}

// Fetch reads back an image stored by l, given the URL Store returned.
func (l *Local) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, ok := strings.CutPrefix(url, l.baseURL+"/")
	if !ok || rel == "" {
		return nil, fmt.Errorf("%s is not a local image", url)
	}
	full := filepath.Join(l.dir, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, filepath.Clean(l.dir)+string(filepath.Separator)) {
		return nil, fmt.Errorf("%s is not a local image", url)
	}
	return os.ReadFile(full)
}
