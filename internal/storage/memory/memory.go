package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/pkg/errors"
)

type followKey struct {
	userID   int64
	authorID int64
}

type MemoryStorage struct {
	users    map[int64]*models.User
	groups   map[int64]*models.Group
	posts    map[int64]*models.Post
	comments map[int64]*models.Comment
	follows  map[followKey]*models.Follow
	lastID   int64
	now      func() time.Time
	mu       sync.RWMutex
}

var _ storage.Storage = (*MemoryStorage)(nil)

func New() *MemoryStorage {
	s := &MemoryStorage{now: time.Now}
	s.reset()
	return s
}

// WithClock подменяет источник времени для pub_date и created.
func (s *MemoryStorage) WithClock(now func() time.Time) *MemoryStorage {
	s.now = now
	return s
}

func (s *MemoryStorage) reset() {
	s.users = make(map[int64]*models.User)
	s.groups = make(map[int64]*models.Group)
	s.posts = make(map[int64]*models.Post)
	s.comments = make(map[int64]*models.Comment)
	s.follows = make(map[followKey]*models.Follow)
}

func (s *MemoryStorage) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username {
			return errors.Wrapf(models.ErrConflict, "user %q", user.Username)
		}
	}
	user.ID = s.nextID()
	u := *user
	s.users[u.ID] = &u
	return nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "user %d", id)
	}
	res := *u
	return &res, nil
}

func (s *MemoryStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			res := *u
			return &res, nil
		}
	}
	return nil, errors.Wrapf(models.ErrNotFound, "user %q", username)
}

func (s *MemoryStorage) GetUsersByIDs(ctx context.Context, ids []int64) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*models.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			c := *u
			res = append(res, &c)
		}
	}
	return res, nil
}

// DeleteUser удаляет пользователя вместе с его постами, комментариями и подписками.
func (s *MemoryStorage) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return errors.Wrapf(models.ErrNotFound, "user %d", id)
	}
	delete(s.users, id)
	for pid, p := range s.posts {
		if p.AuthorID == id {
			s.deletePostLocked(pid)
		}
	}
	for cid, c := range s.comments {
		if c.AuthorID == id {
			delete(s.comments, cid)
		}
	}
	for k := range s.follows {
		if k.userID == id || k.authorID == id {
			delete(s.follows, k)
		}
	}
	return nil
}

func (s *MemoryStorage) CreateGroup(ctx context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.Slug == group.Slug {
			return errors.Wrapf(models.ErrConflict, "group %q", group.Slug)
		}
	}
	group.ID = s.nextID()
	g := *group
	s.groups[g.ID] = &g
	return nil
}

func (s *MemoryStorage) GetGroupBySlug(ctx context.Context, slug string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.groups {
		if g.Slug == slug {
			res := *g
			return &res, nil
		}
	}
	return nil, errors.Wrapf(models.ErrNotFound, "group %q", slug)
}

func (s *MemoryStorage) GetGroupsByIDs(ctx context.Context, ids []int64) ([]*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*models.Group
	for _, id := range ids {
		if g, ok := s.groups[id]; ok {
			c := *g
			res = append(res, &c)
		}
	}
	return res, nil
}

func (s *MemoryStorage) ListGroups(ctx context.Context) ([]*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		c := *g
		res = append(res, &c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Title < res[j].Title })
	return res, nil
}

// DeleteGroup удаляет группу, посты группы остаются без группы.
func (s *MemoryStorage) DeleteGroup(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[id]; !ok {
		return errors.Wrapf(models.ErrNotFound, "group %d", id)
	}
	delete(s.groups, id)
	for _, p := range s.posts {
		if p.GroupID != nil && *p.GroupID == id {
			p.GroupID = nil
		}
	}
	return nil
}

func (s *MemoryStorage) CreatePost(ctx context.Context, post *models.Post) error {
	if strings.TrimSpace(post.Text) == "" {
		return models.NewValidationError("text", "this field is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[post.AuthorID]; !ok {
		return errors.Wrapf(models.ErrNotFound, "author %d", post.AuthorID)
	}
	if post.GroupID != nil {
		if _, ok := s.groups[*post.GroupID]; !ok {
			return errors.Wrapf(models.ErrNotFound, "group %d", *post.GroupID)
		}
	}

	post.ID = s.nextID()
	post.PubDate = s.now()
	s.posts[post.ID] = copyPost(post)
	return nil
}

func (s *MemoryStorage) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, exists := s.posts[id]
	if !exists {
		return nil, errors.Wrapf(models.ErrNotFound, "post %d", id)
	}
	return copyPost(post), nil
}

func (s *MemoryStorage) UpdatePost(ctx context.Context, id, editorID int64, upd models.PostUpdate) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "post %d", id)
	}
	if post.AuthorID != editorID {
		return nil, errors.Wrapf(models.ErrForbidden, "user %d is not the author of post %d", editorID, id)
	}
	if strings.TrimSpace(upd.Text) == "" {
		return nil, models.NewValidationError("text", "this field is required")
	}
	if upd.GroupID != nil {
		if _, ok := s.groups[*upd.GroupID]; !ok {
			return nil, errors.Wrapf(models.ErrNotFound, "group %d", *upd.GroupID)
		}
	}

	post.Text = upd.Text
	post.GroupID = copyID(upd.GroupID)
	if upd.Image != nil {
		post.Image = *upd.Image
	}
	return copyPost(post), nil
}

// DeletePost удаляет пост и все его комментарии.
func (s *MemoryStorage) DeletePost(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return errors.Wrapf(models.ErrNotFound, "post %d", id)
	}
	s.deletePostLocked(id)
	return nil
}

func (s *MemoryStorage) deletePostLocked(id int64) {
	delete(s.posts, id)
	for cid, c := range s.comments {
		if c.PostID == id {
			delete(s.comments, cid)
		}
	}
}

func (s *MemoryStorage) ListPosts(ctx context.Context, filter storage.PostFilter, limit, offset int) (*models.PaginatedPosts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var posts []*models.Post
	for _, post := range s.posts {
		if s.matchLocked(post, filter) {
			posts = append(posts, post)
		}
	}

	// Сортировка от новых к старым
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].PubDate.Equal(posts[j].PubDate) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].PubDate.After(posts[j].PubDate)
	})

	totalCount := len(posts)

	// Отрицательные или выходящие за конец offset и limit дают пустой срез.
	if offset < 0 || offset > len(posts) {
		offset = len(posts)
	}
	if limit < 0 {
		limit = 0
	}
	endIdx := len(posts)
	if limit < endIdx-offset {
		endIdx = offset + limit
	}

	result := make([]*models.Post, 0, endIdx-offset)
	for _, p := range posts[offset:endIdx] {
		result = append(result, copyPost(p))
	}

	return &models.PaginatedPosts{
		Posts:      result,
		TotalCount: totalCount,
	}, nil
}

func (s *MemoryStorage) matchLocked(post *models.Post, filter storage.PostFilter) bool {
	if filter.GroupID != nil && (post.GroupID == nil || *post.GroupID != *filter.GroupID) {
		return false
	}
	if filter.AuthorID != nil && post.AuthorID != *filter.AuthorID {
		return false
	}
	if filter.FollowerID != nil {
		if _, ok := s.follows[followKey{userID: *filter.FollowerID, authorID: post.AuthorID}]; !ok {
			return false
		}
	}
	if filter.Text != "" && !strings.Contains(strings.ToLower(post.Text), strings.ToLower(filter.Text)) {
		return false
	}
	return true
}

func (s *MemoryStorage) CreateComment(ctx context.Context, comment *models.Comment) error {
	if strings.TrimSpace(comment.Text) == "" {
		return models.NewValidationError("text", "this field is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[comment.PostID]; !ok {
		return errors.Wrapf(models.ErrNotFound, "post %d", comment.PostID)
	}
	if _, ok := s.users[comment.AuthorID]; !ok {
		return errors.Wrapf(models.ErrNotFound, "author %d", comment.AuthorID)
	}

	comment.ID = s.nextID()
	comment.Created = s.now()
	c := *comment
	c.Author = nil
	s.comments[c.ID] = &c
	return nil
}

func (s *MemoryStorage) GetComments(ctx context.Context, postID int64) ([]*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*models.Comment
	for _, c := range s.comments {
		if c.PostID == postID {
			cp := *c
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Created.Equal(res[j].Created) {
			return res[i].ID > res[j].ID
		}
		return res[i].Created.After(res[j].Created)
	})
	return res, nil
}

func (s *MemoryStorage) CreateFollow(ctx context.Context, userID, authorID int64) (*models.Follow, error) {
	if userID == authorID {
		return nil, models.NewValidationError("author", "cannot follow yourself")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "user %d", userID)
	}
	if _, ok := s.users[authorID]; !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "author %d", authorID)
	}
	key := followKey{userID: userID, authorID: authorID}
	if _, ok := s.follows[key]; ok {
		return nil, errors.Wrapf(models.ErrConflict, "follow %d -> %d", userID, authorID)
	}

	f := &models.Follow{ID: s.nextID(), UserID: userID, AuthorID: authorID}
	s.follows[key] = f
	res := *f
	return &res, nil
}

// DeleteFollow идемпотентен: отсутствие подписки не является ошибкой.
func (s *MemoryStorage) DeleteFollow(ctx context.Context, userID, authorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.follows, followKey{userID: userID, authorID: authorID})
	return nil
}

func (s *MemoryStorage) IsFollowing(ctx context.Context, userID, authorID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.follows[followKey{userID: userID, authorID: authorID}]
	return ok, nil
}

func (s *MemoryStorage) ListFollows(ctx context.Context, userID int64) ([]*models.Follow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*models.Follow
	for k, f := range s.follows {
		if k.userID == userID {
			c := *f
			res = append(res, &c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// Close очищает хранилище.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	return nil
}

func copyPost(p *models.Post) *models.Post {
	c := *p
	c.GroupID = copyID(p.GroupID)
	c.Author = nil
	c.Group = nil
	return &c
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
