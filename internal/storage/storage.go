package storage

import (
	"context"

	"github.com/ButyrinIA/blog/internal/models"
)

// PostFilter ограничивает выборку постов. Пустой фильтр - все посты.
type PostFilter struct {
	GroupID  *int64
	AuthorID *int64
	// FollowerID - только посты авторов, на которых подписан этот пользователь.
	FollowerID *int64
	// Text - поиск подстроки в тексте поста, без учета регистра.
	Text string
}

// Storage - хранилище сущностей блога. Реализации обязаны соблюдать
// каскадное удаление и обнуление ссылок на группу.
type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]*models.User, error)
	DeleteUser(ctx context.Context, id int64) error

	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroupBySlug(ctx context.Context, slug string) (*models.Group, error)
	GetGroupsByIDs(ctx context.Context, ids []int64) ([]*models.Group, error)
	ListGroups(ctx context.Context) ([]*models.Group, error)
	DeleteGroup(ctx context.Context, id int64) error

	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	UpdatePost(ctx context.Context, id, editorID int64, upd models.PostUpdate) (*models.Post, error)
	DeletePost(ctx context.Context, id int64) error
	ListPosts(ctx context.Context, filter PostFilter, limit, offset int) (*models.PaginatedPosts, error)

	CreateComment(ctx context.Context, comment *models.Comment) error
	GetComments(ctx context.Context, postID int64) ([]*models.Comment, error)

	CreateFollow(ctx context.Context, userID, authorID int64) (*models.Follow, error)
	DeleteFollow(ctx context.Context, userID, authorID int64) error
	IsFollowing(ctx context.Context, userID, authorID int64) (bool, error)
	ListFollows(ctx context.Context, userID int64) ([]*models.Follow, error)

	Close() error
}
