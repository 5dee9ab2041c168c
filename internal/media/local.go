package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// LocalStore хранит файлы в каталоге на диске.
type LocalStore struct {
	root    string
	baseURL string
}

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(root, UploadDir), 0o755); err != nil {
		return nil, errors.Wrap(err, "create media dir")
	}
	return &LocalStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *LocalStore) Save(ctx context.Context, data []byte, filename string) (string, error) {
	key := NewKey(filename)
	if err := os.WriteFile(filepath.Join(s.root, filepath.FromSlash(key)), data, 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", key)
	}
	return key, nil
}

func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(ref)))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", ref)
	}
	return nil
}

func (s *LocalStore) URL(ref string) string {
	if ref == "" {
		return ""
	}
	return s.baseURL + "/" + ref
}
