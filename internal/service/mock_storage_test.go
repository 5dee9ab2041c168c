package service

import (
	"context"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/stretchr/testify/mock"
)

// мок для интерфейса storage.Storage
type mockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*mockStorage)(nil)

func (m *mockStorage) CreateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockStorage) GetUsersByIDs(ctx context.Context, ids []int64) ([]*models.User, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *mockStorage) DeleteUser(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStorage) CreateGroup(ctx context.Context, group *models.Group) error {
	return m.Called(ctx, group).Error(0)
}

func (m *mockStorage) GetGroupBySlug(ctx context.Context, slug string) (*models.Group, error) {
	args := m.Called(ctx, slug)
	return args.Get(0).(*models.Group), args.Error(1)
}

func (m *mockStorage) GetGroupsByIDs(ctx context.Context, ids []int64) ([]*models.Group, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]*models.Group), args.Error(1)
}

func (m *mockStorage) ListGroups(ctx context.Context) ([]*models.Group, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.Group), args.Error(1)
}

func (m *mockStorage) DeleteGroup(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStorage) CreatePost(ctx context.Context, post *models.Post) error {
	return m.Called(ctx, post).Error(0)
}

func (m *mockStorage) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *mockStorage) UpdatePost(ctx context.Context, id, editorID int64, upd models.PostUpdate) (*models.Post, error) {
	args := m.Called(ctx, id, editorID, upd)
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *mockStorage) DeletePost(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStorage) ListPosts(ctx context.Context, filter storage.PostFilter, limit, offset int) (*models.PaginatedPosts, error) {
	args := m.Called(ctx, filter, limit, offset)
	return args.Get(0).(*models.PaginatedPosts), args.Error(1)
}

func (m *mockStorage) CreateComment(ctx context.Context, comment *models.Comment) error {
	return m.Called(ctx, comment).Error(0)
}

func (m *mockStorage) GetComments(ctx context.Context, postID int64) ([]*models.Comment, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).([]*models.Comment), args.Error(1)
}

func (m *mockStorage) CreateFollow(ctx context.Context, userID, authorID int64) (*models.Follow, error) {
	args := m.Called(ctx, userID, authorID)
	return args.Get(0).(*models.Follow), args.Error(1)
}

func (m *mockStorage) DeleteFollow(ctx context.Context, userID, authorID int64) error {
	return m.Called(ctx, userID, authorID).Error(0)
}

func (m *mockStorage) IsFollowing(ctx context.Context, userID, authorID int64) (bool, error) {
	args := m.Called(ctx, userID, authorID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStorage) ListFollows(ctx context.Context, userID int64) ([]*models.Follow, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*models.Follow), args.Error(1)
}

func (m *mockStorage) Close() error {
	return m.Called().Error(0)
}
