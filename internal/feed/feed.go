// Package feed собирает упорядоченные постраничные ленты постов.
package feed

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/ButyrinIA/blog/internal/cache"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/policy"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPostsPerPage = 10
	DefaultIndexTTL     = 20 * time.Second
	IndexCacheKeyPrefix = "index_page:"
)

type Options struct {
	PostsPerPage int
	IndexTTL     time.Duration
}

type Composer struct {
	store    storage.Storage
	cache    cache.Cache
	perPage  int
	indexTTL time.Duration
	log      logrus.FieldLogger
}

// Profile - лента автора и общее число его постов.
type Profile struct {
	Author    *models.User `json:"author"`
	Page      *models.Page `json:"page"`
	PostCount int          `json:"postCount"`
}

func New(store storage.Storage, c cache.Cache, opts Options, log logrus.FieldLogger) *Composer {
	if opts.PostsPerPage <= 0 {
		opts.PostsPerPage = DefaultPostsPerPage
	}
	if opts.IndexTTL <= 0 {
		opts.IndexTTL = DefaultIndexTTL
	}
	return &Composer{
		store:    store,
		cache:    c,
		perPage:  opts.PostsPerPage,
		indexTTL: opts.IndexTTL,
		log:      log,
	}
}

func (c *Composer) PostsPerPage() int {
	return c.perPage
}

func IndexCacheKey(page int) string {
	return IndexCacheKeyPrefix + strconv.Itoa(page)
}

// GlobalFeed отдает общую ленту. Страница кэшируется на indexTTL,
// изменения постов до истечения срока не видны.
func (c *Composer) GlobalFeed(ctx context.Context, page int) (*models.Page, error) {
	page = normalize(page)
	key := IndexCacheKey(page)

	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("Не удалось прочитать кэш ленты")
	} else if ok {
		var cached models.Page
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
		c.log.WithField("key", key).Warn("Поврежденная запись кэша ленты")
	}

	res, err := c.list(ctx, storage.PostFilter{}, page)
	if err != nil {
		return nil, err
	}
	// Страницы за последней не кэшируются.
	if res.Number > res.NumPages {
		return res, nil
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, errors.Wrap(err, "marshal feed page")
	}
	if err := c.cache.Set(ctx, key, raw, c.indexTTL); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("Не удалось записать кэш ленты")
	}
	return res, nil
}

func (c *Composer) GroupFeed(ctx context.Context, slug string, page int) (*models.Group, *models.Page, error) {
	group, err := c.store.GetGroupBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	res, err := c.list(ctx, storage.PostFilter{GroupID: &group.ID}, normalize(page))
	if err != nil {
		return nil, nil, err
	}
	return group, res, nil
}

func (c *Composer) ProfileFeed(ctx context.Context, username string, page int) (*Profile, error) {
	author, err := c.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	res, err := c.list(ctx, storage.PostFilter{AuthorID: &author.ID}, normalize(page))
	if err != nil {
		return nil, err
	}
	return &Profile{Author: author, Page: res, PostCount: res.TotalCount}, nil
}

// FollowedFeed - посты авторов, на которых подписан actor.
func (c *Composer) FollowedFeed(ctx context.Context, actor *models.User, page int) (*models.Page, error) {
	if !policy.CanViewFollowFeed(actor) {
		return nil, errors.Wrap(models.ErrForbidden, "follow feed requires login")
	}
	return c.list(ctx, storage.PostFilter{FollowerID: &actor.ID}, normalize(page))
}

// ClearCache немедленно сбрасывает закэшированную общую ленту.
func (c *Composer) ClearCache(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

func (c *Composer) list(ctx context.Context, filter storage.PostFilter, page int) (*models.Page, error) {
	res, err := c.store.ListPosts(ctx, filter, c.perPage, pageOffset(page, c.perPage))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list posts")
	}
	if err := c.Hydrate(ctx, res.Posts); err != nil {
		return nil, err
	}
	return paginate(res.Posts, res.TotalCount, page, c.perPage), nil
}

// Hydrate заполняет Author и Group у постов через пакетные загрузчики.
func (c *Composer) Hydrate(ctx context.Context, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	l := LoadersFrom(ctx, c.store)

	authors := make([]dataloader.Thunk[*models.User], len(posts))
	groups := make([]dataloader.Thunk[*models.Group], len(posts))
	for i, p := range posts {
		authors[i] = l.Users.Load(ctx, p.AuthorID)
		if p.GroupID != nil {
			groups[i] = l.Groups.Load(ctx, *p.GroupID)
		}
	}
	for i, p := range posts {
		author, err := authors[i]()
		if err != nil {
			return errors.Wrapf(err, "load author of post %d", p.ID)
		}
		p.Author = author
		if groups[i] == nil {
			continue
		}
		group, err := groups[i]()
		if err != nil {
			return errors.Wrapf(err, "load group of post %d", p.ID)
		}
		p.Group = group
	}
	return nil
}

// HydrateComments заполняет авторов комментариев.
func (c *Composer) HydrateComments(ctx context.Context, comments []*models.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	l := LoadersFrom(ctx, c.store)
	thunks := make([]dataloader.Thunk[*models.User], len(comments))
	for i, cm := range comments {
		thunks[i] = l.Users.Load(ctx, cm.AuthorID)
	}
	for i, cm := range comments {
		author, err := thunks[i]()
		if err != nil {
			return errors.Wrapf(err, "load author of comment %d", cm.ID)
		}
		cm.Author = author
	}
	return nil
}

func normalize(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// pageOffset возвращает смещение страницы. Для номеров, при которых
// произведение переполняет int, смещение заведомо за концом выборки.
func pageOffset(page, perPage int) int {
	if page-1 > math.MaxInt/perPage {
		return math.MaxInt
	}
	return (page - 1) * perPage
}

// paginate строит метаданные страницы. Номер за последней страницей
// дает пустую страницу, а не ошибку.
func paginate(posts []*models.Post, total, page, perPage int) *models.Page {
	numPages := (total + perPage - 1) / perPage
	if numPages < 1 {
		numPages = 1
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return &models.Page{
		Posts:       posts,
		Number:      page,
		PerPage:     perPage,
		NumPages:    numPages,
		TotalCount:  total,
		HasNext:     page < numPages,
		HasPrevious: page > 1,
	}
}
