// Package forms содержит явные структуры ввода для каждого сценария
// и чистые функции их проверки.
package forms

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ButyrinIA/blog/internal/models"
)

const (
	MaxGroupTitleLen = 200
	MaxGroupSlugLen  = 40
	MaxUsernameLen   = 150
	MaxPage          = 1 << 20
	MaxImageSize     = 10 << 20
)

var slugRe = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

// ImageUpload - загруженный файл изображения.
type ImageUpload struct {
	Filename string
	Data     []byte
}

type PostInput struct {
	Text    string
	GroupID *int64
	Image   *ImageUpload
}

// Validate нормализует ввод и проверяет обязательные поля.
func (in *PostInput) Validate() error {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		return models.NewValidationError("text", "this field is required")
	}
	if in.Image != nil {
		if err := ValidateImage(in.Image); err != nil {
			return err
		}
	}
	return nil
}

type CommentInput struct {
	Text string
}

func (in *CommentInput) Validate() error {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		return models.NewValidationError("text", "this field is required")
	}
	return nil
}

type GroupInput struct {
	Title       string `yaml:"title"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

func (in *GroupInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.Title == "":
		return models.NewValidationError("title", "this field is required")
	case utf8.RuneCountInString(in.Title) > MaxGroupTitleLen:
		return models.NewValidationError("title", "ensure this value has at most 200 characters")
	case in.Slug == "":
		return models.NewValidationError("slug", "this field is required")
	case len(in.Slug) > MaxGroupSlugLen:
		return models.NewValidationError("slug", "ensure this value has at most 40 characters")
	case !slugRe.MatchString(in.Slug):
		return models.NewValidationError("slug", "enter a valid slug")
	case in.Description == "":
		return models.NewValidationError("description", "this field is required")
	}
	return nil
}

// ValidateUsername проверяет имя пользователя-ссылки.
func ValidateUsername(username string) error {
	if username == "" {
		return models.NewValidationError("username", "this field is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLen {
		return models.NewValidationError("username", "ensure this value has at most 150 characters")
	}
	return nil
}

// ValidateImage принимает только файлы, которые декодируются как GIF, PNG или JPEG.
func ValidateImage(img *ImageUpload) error {
	if len(img.Data) == 0 {
		return models.NewValidationError("image", "the submitted file is empty")
	}
	if len(img.Data) > MaxImageSize {
		return models.NewValidationError("image", "the submitted file is too large")
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(img.Data)); err != nil {
		return models.NewValidationError("image", "upload a valid image")
	}
	return nil
}

// ParseGroupID разбирает значение поля group: пустая строка означает "без группы".
func ParseGroupID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, models.NewValidationError("group", "select a valid choice")
	}
	return &id, nil
}

// ParsePage возвращает номер страницы; некорректные значения дают первую страницу,
// слишком большие ограничиваются MaxPage.
func ParsePage(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	switch {
	case errors.Is(err, strconv.ErrRange) && n > 0:
		return MaxPage
	case err != nil || n < 1:
		return 1
	case n > MaxPage:
		return MaxPage
	}
	return n
}
