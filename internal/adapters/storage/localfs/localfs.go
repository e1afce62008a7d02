package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"avatarsynth/internal/ports"
)

// ErrInvalidKey is returned for object keys that would leave the root.
var ErrInvalidKey = errors.New("localfs: invalid object key")

// LocalFS implements ports.StorageProvider using the local filesystem.
// It stores objects under a configured root directory.
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: filepath.Clean(root)}
}

func (l *LocalFS) Provider() string { return "localfs" }

// path maps objectKey to a file under root.
func (l *LocalFS) path(objectKey string) (string, error) {
	if objectKey == "" || strings.HasPrefix(objectKey, "/") || strings.Contains(objectKey, "\\") {
		return "", ErrInvalidKey
	}
	p := filepath.Join(l.root, filepath.FromSlash(objectKey))
	rel, err := filepath.Rel(l.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return p, nil
}

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	dst, err := l.path(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, err
	}

	// Write to a temp file first so readers never see a partial video.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, in.Reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("localfs: write %s: %w", in.ObjectKey, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return ports.PutObjectOutput{}, err
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	p, err := l.path(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, "", 0, err
	}

	st, statErr := f.Stat()
	if statErr == nil {
		size = st.Size()
	}

	// Prefer extension-based type. If empty, sniff first bytes.
	contentType = mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, io.SeekStart)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

func (l *LocalFS) DeleteObject(ctx context.Context, objectKey string) error {
	p, err := l.path(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *LocalFS) Check(ctx context.Context) error {
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(l.root, ".health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
