package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	cachememory "github.com/ButyrinIA/blog/internal/cache/memory"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const perPage = 10

type fixture struct {
	store    *memory.MemoryStorage
	composer *Composer
	author   *models.User
	group    *models.Group
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	store := memory.New().WithClock(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	})
	logger, _ := test.NewNullLogger()

	author := &models.User{Username: "user-test"}
	require.NoError(t, store.CreateUser(ctx, author))
	group := &models.Group{Title: "Заголовок для тестовой группы", Slug: "slug_test", Description: "Тестовое описание"}
	require.NoError(t, store.CreateGroup(ctx, group))

	return &fixture{
		store:    store,
		composer: New(store, cachememory.New(), Options{PostsPerPage: perPage}, logger),
		author:   author,
		group:    group,
	}
}

func (f *fixture) post(t *testing.T, text string, author *models.User, group *models.Group) *models.Post {
	t.Helper()
	p := &models.Post{Text: text, AuthorID: author.ID}
	if group != nil {
		p.GroupID = &group.ID
	}
	require.NoError(t, f.store.CreatePost(context.Background(), p))
	return p
}

func ids(posts []*models.Post) []int64 {
	res := make([]int64, len(posts))
	for i, p := range posts {
		res[i] = p.ID
	}
	return res
}

func TestPagination(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const extra = perPage - 1
	var created []*models.Post
	for i := 0; i < perPage+extra; i++ {
		created = append(created, f.post(t, fmt.Sprintf("Тестовый пост + %d", i), f.author, f.group))
	}
	var newestFirst []int64
	for i := len(created) - 1; i >= 0; i-- {
		newestFirst = append(newestFirst, created[i].ID)
	}

	feeds := map[string]func(page int) (*models.Page, error){
		"global": func(page int) (*models.Page, error) { return f.composer.GlobalFeed(ctx, page) },
		"group": func(page int) (*models.Page, error) {
			_, p, err := f.composer.GroupFeed(ctx, f.group.Slug, page)
			return p, err
		},
		"profile": func(page int) (*models.Page, error) {
			p, err := f.composer.ProfileFeed(ctx, f.author.Username, page)
			if err != nil {
				return nil, err
			}
			return p.Page, nil
		},
	}

	for name, load := range feeds {
		t.Run(name, func(t *testing.T) {
			first, err := load(1)
			require.NoError(t, err)
			assert.Len(t, first.Posts, perPage)
			assert.True(t, first.HasNext)
			assert.False(t, first.HasPrevious)
			assert.Equal(t, 2, first.NumPages)

			second, err := load(2)
			require.NoError(t, err)
			assert.Len(t, second.Posts, extra)
			assert.False(t, second.HasNext)

			got := append(ids(first.Posts), ids(second.Posts)...)
			if diff := cmp.Diff(newestFirst, got); diff != "" {
				t.Errorf("порядок постов (-want +got):\n%s", diff)
			}

			beyond, err := load(5)
			require.NoError(t, err)
			assert.Empty(t, beyond.Posts, "Страница за последней должна быть пустой")
			assert.Equal(t, 5, beyond.Number)

			huge, err := load(math.MaxInt)
			require.NoError(t, err)
			assert.Empty(t, huge.Posts)
			assert.Equal(t, perPage+extra, huge.TotalCount)
			assert.False(t, huge.HasNext)
		})
	}
}

func TestFeedExclusion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	post := f.post(t, "Тестовый текст", f.author, f.group)

	newGroup := &models.Group{Title: "new_group", Slug: "new_group", Description: "new group for test"}
	require.NoError(t, f.store.CreateGroup(ctx, newGroup))
	newUser := &models.User{Username: "new_user"}
	require.NoError(t, f.store.CreateUser(ctx, newUser))

	_, groupPage, err := f.composer.GroupFeed(ctx, newGroup.Slug, 1)
	require.NoError(t, err)
	assert.NotContains(t, ids(groupPage.Posts), post.ID)

	profile, err := f.composer.ProfileFeed(ctx, newUser.Username, 1)
	require.NoError(t, err)
	assert.NotContains(t, ids(profile.Page.Posts), post.ID)
	assert.Zero(t, profile.PostCount)

	_, groupPage, err = f.composer.GroupFeed(ctx, f.group.Slug, 1)
	require.NoError(t, err)
	require.Len(t, groupPage.Posts, 1)
	assert.Equal(t, post.ID, groupPage.Posts[0].ID)
	assert.Equal(t, f.author.Username, groupPage.Posts[0].Author.Username, "Автор должен быть подгружен")
	assert.Equal(t, f.group.Slug, groupPage.Posts[0].Group.Slug, "Группа должна быть подгружена")
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.composer.GroupFeed(ctx, "unknown", 1)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.composer.ProfileFeed(ctx, "unknown", 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFollowedFeed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	post := f.post(t, "Тестовый текст", f.author, nil)
	follower := &models.User{Username: "follower"}
	require.NoError(t, f.store.CreateUser(ctx, follower))
	stranger := &models.User{Username: "stranger"}
	require.NoError(t, f.store.CreateUser(ctx, stranger))
	_, err := f.store.CreateFollow(ctx, follower.ID, f.author.ID)
	require.NoError(t, err)

	page, err := f.composer.FollowedFeed(ctx, follower, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{post.ID}, ids(page.Posts))

	page, err = f.composer.FollowedFeed(ctx, stranger, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)

	_, err = f.composer.FollowedFeed(ctx, nil, 1)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestGlobalFeedCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	post := f.post(t, "Тестовый текст", f.author, f.group)

	first, err := f.composer.GlobalFeed(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first.Posts, 1)

	_, err = f.store.UpdatePost(ctx, post.ID, f.author.ID, models.PostUpdate{Text: "меняю текст"})
	require.NoError(t, err)

	second, err := f.composer.GlobalFeed(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Тестовый текст", second.Posts[0].Text, "До сброса кэша лента не меняется")

	require.NoError(t, f.composer.ClearCache(ctx))

	third, err := f.composer.GlobalFeed(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "меняю текст", third.Posts[0].Text)
}

func TestGlobalFeedSkipsCacheBeyondLastPage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.post(t, "Тестовый текст", f.author, f.group)

	c := cachememory.New()
	logger, _ := test.NewNullLogger()
	composer := New(f.store, c, Options{PostsPerPage: perPage}, logger)

	for _, page := range []int{2, 50, math.MaxInt} {
		res, err := composer.GlobalFeed(ctx, page)
		require.NoError(t, err)
		assert.Empty(t, res.Posts)
	}
	assert.Equal(t, 0, c.Len(), "Пустые страницы за концом ленты не кэшируются")

	_, err := composer.GlobalFeed(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

type brokenCache struct {
	mock.Mock
}

func (c *brokenCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := c.Called(ctx, key)
	return nil, false, args.Error(0)
}

func (c *brokenCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := c.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (c *brokenCache) Delete(ctx context.Context, key string) error { return nil }
func (c *brokenCache) Clear(ctx context.Context) error             { return nil }
func (c *brokenCache) Close() error                                { return nil }

func TestGlobalFeedCacheFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.post(t, "Тестовый текст", f.author, nil)

	c := &brokenCache{}
	c.On("Get", mock.Anything, "index_page:1").Return(errors.New("connection refused"))
	c.On("Set", mock.Anything, "index_page:1", mock.Anything, DefaultIndexTTL).Return(errors.New("connection refused"))

	logger, hook := test.NewNullLogger()
	composer := New(f.store, c, Options{PostsPerPage: perPage}, logger)

	page, err := composer.GlobalFeed(ctx, 1)
	require.NoError(t, err, "Сбой кэша не должен ломать ленту")
	assert.Len(t, page.Posts, 1)
	require.Len(t, hook.Entries, 2)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	c.AssertExpectations(t)
}
