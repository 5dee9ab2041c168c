// Package policy решает, может ли пользователь выполнить действие.
// Актор nil означает анонимного пользователя.
package policy

import "github.com/ButyrinIA/blog/internal/models"

func IsAuthenticated(actor *models.User) bool {
	return actor != nil && actor.ID != 0
}

// CanEditPost разрешает редактирование только автору поста.
func CanEditPost(actor *models.User, post *models.Post) bool {
	return IsAuthenticated(actor) && post != nil && actor.ID == post.AuthorID
}

func CanCreatePost(actor *models.User) bool {
	return IsAuthenticated(actor)
}

func CanComment(actor *models.User) bool {
	return IsAuthenticated(actor)
}

// CanFollow запрещает подписку на самого себя.
func CanFollow(actor *models.User, author *models.User) bool {
	return IsAuthenticated(actor) && author != nil && actor.ID != author.ID
}

func CanViewFollowFeed(actor *models.User) bool {
	return IsAuthenticated(actor)
}
