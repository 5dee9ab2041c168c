// Package service реализует сценарии блога: ленты, посты, комментарии и подписки.
package service

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ButyrinIA/blog/internal/feed"
	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/live"
	"github.com/ButyrinIA/blog/internal/media"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/policy"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Service struct {
	store storage.Storage
	feed  *feed.Composer
	media media.Store
	hub   *live.Hub
	log   logrus.FieldLogger
}

func New(store storage.Storage, composer *feed.Composer, mediaStore media.Store, hub *live.Hub, log logrus.FieldLogger) *Service {
	return &Service{
		store: store,
		feed:  composer,
		media: mediaStore,
		hub:   hub,
		log:   log,
	}
}

type GroupData struct {
	Group *models.Group `json:"group"`
	Page  *models.Page  `json:"page_obj"`
}

type ProfileData struct {
	Author    *models.User `json:"author"`
	Page      *models.Page `json:"page_obj"`
	PostCount int          `json:"post_count"`
	Following bool         `json:"following"`
}

type PostDetailData struct {
	Post            *models.Post      `json:"post"`
	Comments        []*models.Comment `json:"comments"`
	AuthorPostCount int               `json:"author_post_count"`
	ImageURL        string            `json:"image_url,omitempty"`
}

type PostFormData struct {
	Groups []*models.Group `json:"groups"`
	Post   *models.Post    `json:"post,omitempty"`
	IsEdit bool            `json:"is_edit"`
}

func PostURL(id int64) string {
	return fmt.Sprintf("/posts/%d/", id)
}

func ProfileURL(username string) string {
	return "/profile/" + url.PathEscape(username) + "/"
}

func (s *Service) Index(ctx context.Context, page int) (*models.Page, error) {
	return s.feed.GlobalFeed(ctx, page)
}

// ClearFeedCache принудительно сбрасывает кэш общей ленты.
func (s *Service) ClearFeedCache(ctx context.Context) error {
	return s.feed.ClearCache(ctx)
}

func (s *Service) Group(ctx context.Context, slug string, page int) (*GroupData, error) {
	group, res, err := s.feed.GroupFeed(ctx, slug, page)
	if err != nil {
		return nil, err
	}
	return &GroupData{Group: group, Page: res}, nil
}

func (s *Service) Profile(ctx context.Context, actor *models.User, username string, page int) (*ProfileData, error) {
	profile, err := s.feed.ProfileFeed(ctx, username, page)
	if err != nil {
		return nil, err
	}
	data := &ProfileData{
		Author:    profile.Author,
		Page:      profile.Page,
		PostCount: profile.PostCount,
	}
	if policy.CanFollow(actor, profile.Author) {
		data.Following, err = s.store.IsFollowing(ctx, actor.ID, profile.Author.ID)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (s *Service) PostDetail(ctx context.Context, id int64) (*PostDetailData, error) {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.feed.Hydrate(ctx, []*models.Post{post}); err != nil {
		return nil, err
	}
	comments, err := s.store.GetComments(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.feed.HydrateComments(ctx, comments); err != nil {
		return nil, err
	}
	count, err := s.store.ListPosts(ctx, storage.PostFilter{AuthorID: &post.AuthorID}, 0, 0)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	return &PostDetailData{
		Post:            post,
		Comments:        comments,
		AuthorPostCount: count.TotalCount,
		ImageURL:        s.media.URL(post.Image),
	}, nil
}

func (s *Service) NewPostForm(ctx context.Context, actor *models.User) (Outcome[*PostFormData], error) {
	if !policy.CanCreatePost(actor) {
		return needsLogin[*PostFormData](), nil
	}
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return Outcome[*PostFormData]{}, err
	}
	return ok(&PostFormData{Groups: groups}), nil
}

// CreatePost публикует пост и ведет автора в его профиль.
func (s *Service) CreatePost(ctx context.Context, actor *models.User, in forms.PostInput) (Outcome[*models.Post], error) {
	if !policy.CanCreatePost(actor) {
		return needsLogin[*models.Post](), nil
	}
	if err := in.Validate(); err != nil {
		return Outcome[*models.Post]{}, err
	}
	if err := s.checkGroup(ctx, in.GroupID); err != nil {
		return Outcome[*models.Post]{}, err
	}

	post := &models.Post{Text: in.Text, AuthorID: actor.ID, GroupID: in.GroupID}
	if in.Image != nil {
		ref, err := s.media.Save(ctx, in.Image.Data, in.Image.Filename)
		if err != nil {
			return Outcome[*models.Post]{}, errors.Wrap(err, "store image")
		}
		post.Image = ref
	}
	if err := s.store.CreatePost(ctx, post); err != nil {
		s.discardImage(ctx, post.Image)
		return Outcome[*models.Post]{}, err
	}

	s.log.WithFields(logrus.Fields{"post_id": post.ID, "author_id": actor.ID}).Info("Создан пост")
	return okThen(post, ProfileURL(actor.Username)), nil
}

// EditPostForm открывает форму редактирования только автору,
// остальных отправляет на страницу поста.
func (s *Service) EditPostForm(ctx context.Context, actor *models.User, id int64) (Outcome[*PostFormData], error) {
	if !policy.IsAuthenticated(actor) {
		return needsLogin[*PostFormData](), nil
	}
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return Outcome[*PostFormData]{}, err
	}
	if !policy.CanEditPost(actor, post) {
		return redirectTo[*PostFormData](PostURL(id)), nil
	}
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return Outcome[*PostFormData]{}, err
	}
	return ok(&PostFormData{Groups: groups, Post: post, IsEdit: true}), nil
}

func (s *Service) EditPost(ctx context.Context, actor *models.User, id int64, in forms.PostInput) (Outcome[*models.Post], error) {
	if !policy.IsAuthenticated(actor) {
		return needsLogin[*models.Post](), nil
	}
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return Outcome[*models.Post]{}, err
	}
	if !policy.CanEditPost(actor, post) {
		return redirectTo[*models.Post](PostURL(id)), nil
	}
	if err := in.Validate(); err != nil {
		return Outcome[*models.Post]{}, err
	}
	if err := s.checkGroup(ctx, in.GroupID); err != nil {
		return Outcome[*models.Post]{}, err
	}

	upd := models.PostUpdate{Text: in.Text, GroupID: in.GroupID}
	if in.Image != nil {
		ref, err := s.media.Save(ctx, in.Image.Data, in.Image.Filename)
		if err != nil {
			return Outcome[*models.Post]{}, errors.Wrap(err, "store image")
		}
		upd.Image = &ref
	}
	updated, err := s.store.UpdatePost(ctx, id, actor.ID, upd)
	if err != nil {
		if upd.Image != nil {
			s.discardImage(ctx, *upd.Image)
		}
		if errors.Is(err, models.ErrForbidden) {
			return redirectTo[*models.Post](PostURL(id)), nil
		}
		return Outcome[*models.Post]{}, err
	}

	s.log.WithFields(logrus.Fields{"post_id": id, "author_id": actor.ID}).Info("Пост изменен")
	return okThen(updated, PostURL(id)), nil
}

// AddComment добавляет комментарий и оповещает подписчиков поста.
func (s *Service) AddComment(ctx context.Context, actor *models.User, postID int64, in forms.CommentInput) (Outcome[*models.Comment], error) {
	if !policy.CanComment(actor) {
		return needsLogin[*models.Comment](), nil
	}
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return Outcome[*models.Comment]{}, err
	}
	if err := in.Validate(); err != nil {
		return Outcome[*models.Comment]{}, err
	}

	comment := &models.Comment{PostID: postID, AuthorID: actor.ID, Text: in.Text}
	if err := s.store.CreateComment(ctx, comment); err != nil {
		return Outcome[*models.Comment]{}, err
	}
	comment.Author = actor
	s.hub.Publish(comment)

	return okThen(comment, PostURL(postID)), nil
}

// SubscribeComments подписывает на новые комментарии существующего поста.
func (s *Service) SubscribeComments(ctx context.Context, postID int64) (<-chan *models.Comment, func(), error) {
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.Subscribe(postID)
	return ch, cancel, nil
}

func (s *Service) FollowIndex(ctx context.Context, actor *models.User, page int) (Outcome[*models.Page], error) {
	if !policy.CanViewFollowFeed(actor) {
		return needsLogin[*models.Page](), nil
	}
	res, err := s.feed.FollowedFeed(ctx, actor, page)
	if err != nil {
		return Outcome[*models.Page]{}, err
	}
	return ok(res), nil
}

// Follow подписывает actor на автора. Подписка на себя и повторная
// подписка ничего не меняют и ведут в профиль автора.
func (s *Service) Follow(ctx context.Context, actor *models.User, username string) (Outcome[*models.Follow], error) {
	if !policy.IsAuthenticated(actor) {
		return needsLogin[*models.Follow](), nil
	}
	author, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return Outcome[*models.Follow]{}, err
	}
	profile := ProfileURL(author.Username)
	if !policy.CanFollow(actor, author) {
		return redirectTo[*models.Follow](profile), nil
	}

	f, err := s.store.CreateFollow(ctx, actor.ID, author.ID)
	if errors.Is(err, models.ErrConflict) {
		return redirectTo[*models.Follow](profile), nil
	}
	if err != nil {
		return Outcome[*models.Follow]{}, err
	}

	s.log.WithFields(logrus.Fields{"user_id": actor.ID, "author_id": author.ID}).Info("Оформлена подписка")
	return okThen(f, profile), nil
}

func (s *Service) Unfollow(ctx context.Context, actor *models.User, username string) (Outcome[struct{}], error) {
	if !policy.IsAuthenticated(actor) {
		return needsLogin[struct{}](), nil
	}
	author, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return Outcome[struct{}]{}, err
	}
	if err := s.store.DeleteFollow(ctx, actor.ID, author.ID); err != nil {
		return Outcome[struct{}]{}, err
	}
	return okThen(struct{}{}, ProfileURL(author.Username)), nil
}

// discardImage удаляет файл, сохраненный для несостоявшейся записи поста.
func (s *Service) discardImage(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := s.media.Delete(ctx, ref); err != nil {
		s.log.WithError(err).WithField("image", ref).Warn("Не удалось удалить файл изображения")
	}
}

func (s *Service) checkGroup(ctx context.Context, groupID *int64) error {
	if groupID == nil {
		return nil
	}
	groups, err := s.store.GetGroupsByIDs(ctx, []int64{*groupID})
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return models.NewValidationError("group", "select a valid choice")
	}
	return nil
}
