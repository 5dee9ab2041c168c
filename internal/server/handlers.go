package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/ButyrinIA/blog/internal/auth"
	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

func (s *Server) index(c *gin.Context) {
	page, err := s.svc.Index(c.Request.Context(), forms.ParsePage(c.Query("page")))
	if err != nil {
		s.fail(c, err)
		return
	}
	render(c, http.StatusOK, "posts/index.html", gin.H{"page_obj": page})
}

func (s *Server) groupPosts(c *gin.Context) {
	data, err := s.svc.Group(c.Request.Context(), c.Param("slug"), forms.ParsePage(c.Query("page")))
	if err != nil {
		s.fail(c, err)
		return
	}
	render(c, http.StatusOK, "posts/group_list.html", data)
}

func (s *Server) profile(c *gin.Context) {
	data, err := s.svc.Profile(c.Request.Context(), auth.Actor(c), c.Param("username"), forms.ParsePage(c.Query("page")))
	if err != nil {
		s.fail(c, err)
		return
	}
	render(c, http.StatusOK, "posts/profile.html", data)
}

func (s *Server) postDetail(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		s.fail(c, models.ErrNotFound)
		return
	}
	data, err := s.svc.PostDetail(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	render(c, http.StatusOK, "posts/post_detail.html", data)
}

func (s *Server) createForm(c *gin.Context) {
	out, err := s.svc.NewPostForm(c.Request.Context(), auth.Actor(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	if s.redirected(c, out.Kind, out.Location) {
		return
	}
	render(c, http.StatusOK, "posts/create_post.html", out.Data)
}

func (s *Server) create(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.Actor(c)
	in, err := postInput(c)
	if err == nil {
		var out service.Outcome[*models.Post]
		out, err = s.svc.CreatePost(ctx, actor, in)
		if err == nil {
			s.redirected(c, out.Kind, out.Location)
			return
		}
	}
	if !models.IsValidation(err) {
		s.fail(c, err)
		return
	}

	form, ferr := s.svc.NewPostForm(ctx, actor)
	if ferr != nil {
		s.fail(c, ferr)
		return
	}
	if s.redirected(c, form.Kind, form.Location) {
		return
	}
	render(c, http.StatusOK, "posts/create_post.html", formContext(form.Data, c, err))
}

func (s *Server) editForm(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		s.fail(c, models.ErrNotFound)
		return
	}
	out, err := s.svc.EditPostForm(c.Request.Context(), auth.Actor(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if s.redirected(c, out.Kind, out.Location) {
		return
	}
	render(c, http.StatusOK, "posts/create_post.html", out.Data)
}

func (s *Server) edit(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.Actor(c)
	id, ok := postID(c)
	if !ok {
		s.fail(c, models.ErrNotFound)
		return
	}
	in, err := postInput(c)
	if err == nil {
		var out service.Outcome[*models.Post]
		out, err = s.svc.EditPost(ctx, actor, id, in)
		if err == nil {
			s.redirected(c, out.Kind, out.Location)
			return
		}
	}
	if !models.IsValidation(err) {
		s.fail(c, err)
		return
	}

	form, ferr := s.svc.EditPostForm(ctx, actor, id)
	if ferr != nil {
		s.fail(c, ferr)
		return
	}
	if s.redirected(c, form.Kind, form.Location) {
		return
	}
	render(c, http.StatusOK, "posts/create_post.html", formContext(form.Data, c, err))
}

// addComment при ошибке ввода возвращает на страницу поста без сохранения.
func (s *Server) addComment(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		s.fail(c, models.ErrNotFound)
		return
	}
	out, err := s.svc.AddComment(c.Request.Context(), auth.Actor(c), id, forms.CommentInput{Text: c.PostForm("text")})
	switch {
	case models.IsValidation(err):
		c.Redirect(http.StatusFound, service.PostURL(id))
	case err != nil:
		s.fail(c, err)
	default:
		s.redirected(c, out.Kind, out.Location)
	}
}

func (s *Server) followIndex(c *gin.Context) {
	out, err := s.svc.FollowIndex(c.Request.Context(), auth.Actor(c), forms.ParsePage(c.Query("page")))
	if err != nil {
		s.fail(c, err)
		return
	}
	if s.redirected(c, out.Kind, out.Location) {
		return
	}
	render(c, http.StatusOK, "posts/follow.html", gin.H{"page_obj": out.Data})
}

func (s *Server) follow(c *gin.Context) {
	out, err := s.svc.Follow(c.Request.Context(), auth.Actor(c), c.Param("username"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.redirected(c, out.Kind, out.Location)
}

func (s *Server) unfollow(c *gin.Context) {
	out, err := s.svc.Unfollow(c.Request.Context(), auth.Actor(c), c.Param("username"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.redirected(c, out.Kind, out.Location)
}

func (s *Server) static(template string) gin.HandlerFunc {
	return func(c *gin.Context) {
		render(c, http.StatusOK, template, gin.H{})
	}
}

// commentsWS транслирует новые комментарии поста в веб-сокет.
func (s *Server) commentsWS(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		s.fail(c, models.ErrNotFound)
		return
	}
	comments, cancel, err := s.svc.SubscribeComments(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer cancel()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("Не удалось открыть веб-сокет")
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case comment, ok := <-comments:
			if !ok {
				return
			}
			if err := conn.WriteJSON(comment); err != nil {
				s.log.WithError(err).WithField("post_id", id).Debug("Подписчик отключился")
				return
			}
		}
	}
}

// redirected отвечает перенаправлением, если исход этого требует.
func (s *Server) redirected(c *gin.Context, kind service.Kind, location string) bool {
	switch {
	case kind == service.NeedsLogin:
		c.Redirect(http.StatusFound, auth.LoginURL(s.cfg.Auth.LoginURL, c.Request.URL.RequestURI()))
	case location != "":
		c.Redirect(http.StatusFound, location)
	default:
		return false
	}
	return true
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, models.ErrNotFound) {
		render(c, http.StatusNotFound, "core/404.html", gin.H{"path": c.Request.URL.Path})
		return
	}
	s.log.WithError(err).WithField("path", c.Request.URL.Path).Error("Ошибка обработки запроса")
	render(c, http.StatusInternalServerError, "core/500.html", nil)
}

func postID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func postInput(c *gin.Context) (forms.PostInput, error) {
	groupID, err := forms.ParseGroupID(c.PostForm("group"))
	if err != nil {
		return forms.PostInput{}, err
	}
	in := forms.PostInput{Text: c.PostForm("text"), GroupID: groupID}

	fh, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return in, nil
	case err != nil:
		return forms.PostInput{}, errors.Wrap(err, "read upload")
	}
	if fh.Size > forms.MaxImageSize {
		return forms.PostInput{}, models.NewValidationError("image", "the submitted file is too large")
	}
	f, err := fh.Open()
	if err != nil {
		return forms.PostInput{}, errors.Wrap(err, "open upload")
	}
	defer f.Close()
	// Лишний байт сверх лимита оставляет проверку размера forms.ValidateImage.
	data, err := io.ReadAll(io.LimitReader(f, forms.MaxImageSize+1))
	if err != nil {
		return forms.PostInput{}, errors.Wrap(err, "read upload")
	}
	in.Image = &forms.ImageUpload{Filename: fh.Filename, Data: data}
	return in, nil
}

func formContext(data *service.PostFormData, c *gin.Context, err error) gin.H {
	var verr *models.ValidationError
	errors.As(err, &verr)
	return gin.H{
		"groups":  data.Groups,
		"post":    data.Post,
		"is_edit": data.IsEdit,
		"form": gin.H{
			"text":  c.PostForm("text"),
			"group": c.PostForm("group"),
		},
		"errors": map[string]string{verr.Field: verr.Message},
	}
}
