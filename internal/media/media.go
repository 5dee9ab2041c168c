// Package media сохраняет загруженные изображения постов и возвращает
// непрозрачную ссылку на файл.
package media

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"
)

const UploadDir = "posts"

type Store interface {
	Save(ctx context.Context, data []byte, filename string) (string, error)
	// Delete удаляет файл; отсутствие файла не ошибка.
	Delete(ctx context.Context, ref string) error
	// URL превращает ссылку в адрес для отображения.
	URL(ref string) string
}

// NewKey генерирует уникальный ключ файла с сохранением расширения.
func NewKey(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join(UploadDir, uuid.New().String()+ext)
}
