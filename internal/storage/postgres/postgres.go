package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(150) NOT NULL UNIQUE
	);
	CREATE TABLE IF NOT EXISTS post_groups (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		slug VARCHAR(40) NOT NULL UNIQUE,
		description TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS posts (
		id BIGSERIAL PRIMARY KEY,
		text TEXT NOT NULL CHECK (btrim(text) <> ''),
		pub_date TIMESTAMPTZ NOT NULL DEFAULT now(),
		author_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		group_id BIGINT REFERENCES post_groups(id) ON DELETE SET NULL,
		image TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_posts_pub_date ON posts(pub_date DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(author_id);
	CREATE INDEX IF NOT EXISTS idx_posts_group_id ON posts(group_id);
	CREATE TABLE IF NOT EXISTS comments (
		id BIGSERIAL PRIMARY KEY,
		post_id BIGINT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		author_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		text TEXT NOT NULL CHECK (btrim(text) <> ''),
		created TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id);
	CREATE TABLE IF NOT EXISTS follows (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		author_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT follows_user_author_key UNIQUE (user_id, author_id),
		CONSTRAINT follows_not_self CHECK (user_id <> author_id)
	);
`

const postColumns = `id, text, pub_date, author_id, group_id, image`

type PostgresStorage struct {
	pool *pgxpool.Pool
}

var _ storage.Storage = (*PostgresStorage)(nil)

func New(ctx context.Context, dsn string, maxConns int32) (*PostgresStorage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// mapErr переводит ошибки ограничений Postgres в ошибки домена.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(models.ErrNotFound, what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return errors.Wrap(models.ErrConflict, what)
		case "23503":
			return errors.Wrapf(models.ErrNotFound, "%s: %s", what, pgErr.ConstraintName)
		case "23514":
			field := pgErr.ColumnName
			if field == "" {
				field = pgErr.ConstraintName
			}
			return models.NewValidationError(field, pgErr.Message)
		}
	}
	return errors.Wrap(err, what)
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username) VALUES ($1) RETURNING id`,
		user.Username).Scan(&user.ID)
	return mapErr(err, "create user")
}

func (s *PostgresStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, `SELECT id, username FROM users WHERE id=$1`, id).Scan(&u.ID, &u.Username)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("user %d", id))
	}
	return &u, nil
}

func (s *PostgresStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, `SELECT id, username FROM users WHERE username=$1`, username).Scan(&u.ID, &u.Username)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("user %q", username))
	}
	return &u, nil
}

func (s *PostgresStorage) GetUsersByIDs(ctx context.Context, ids []int64) ([]*models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, username FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, mapErr(err, "get users")
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// DeleteUser полагается на ON DELETE CASCADE для постов, комментариев и подписок.
func (s *PostgresStorage) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return mapErr(err, "delete user")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrNotFound, "user %d", id)
	}
	return nil
}

func (s *PostgresStorage) CreateGroup(ctx context.Context, group *models.Group) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO post_groups (title, slug, description)
		VALUES ($1, $2, $3) RETURNING id`,
		group.Title, group.Slug, group.Description).Scan(&group.ID)
	return mapErr(err, fmt.Sprintf("create group %q", group.Slug))
}

func (s *PostgresStorage) GetGroupBySlug(ctx context.Context, slug string) (*models.Group, error) {
	var g models.Group
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, slug, description
		FROM post_groups
		WHERE slug=$1`, slug).Scan(&g.ID, &g.Title, &g.Slug, &g.Description)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("group %q", slug))
	}
	return &g, nil
}

func (s *PostgresStorage) GetGroupsByIDs(ctx context.Context, ids []int64) ([]*models.Group, error) {
	return s.queryGroups(ctx, `
		SELECT id, title, slug, description
		FROM post_groups
		WHERE id = ANY($1)`, ids)
}

func (s *PostgresStorage) ListGroups(ctx context.Context) ([]*models.Group, error) {
	return s.queryGroups(ctx, `
		SELECT id, title, slug, description
		FROM post_groups
		ORDER BY title`)
}

func (s *PostgresStorage) queryGroups(ctx context.Context, query string, args ...any) ([]*models.Group, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "list groups")
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Title, &g.Slug, &g.Description); err != nil {
			return nil, err
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

// DeleteGroup полагается на ON DELETE SET NULL для постов группы.
func (s *PostgresStorage) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM post_groups WHERE id=$1`, id)
	if err != nil {
		return mapErr(err, "delete group")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrNotFound, "group %d", id)
	}
	return nil
}

func (s *PostgresStorage) CreatePost(ctx context.Context, post *models.Post) error {
	if strings.TrimSpace(post.Text) == "" {
		return models.NewValidationError("text", "this field is required")
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO posts (text, author_id, group_id, image)
			VALUES ($1, $2, $3, $4)
			RETURNING id, pub_date`,
			post.Text, post.AuthorID, post.GroupID, post.Image).Scan(&post.ID, &post.PubDate)
		return mapErr(err, "create post")
	})
}

func (s *PostgresStorage) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	p, err := scanPost(s.pool.QueryRow(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE id=$1`, id))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("post %d", id))
	}
	return p, nil
}

func (s *PostgresStorage) UpdatePost(ctx context.Context, id, editorID int64, upd models.PostUpdate) (*models.Post, error) {
	var updated *models.Post
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var authorID int64
		err := tx.QueryRow(ctx, `SELECT author_id FROM posts WHERE id=$1 FOR UPDATE`, id).Scan(&authorID)
		if err != nil {
			return mapErr(err, fmt.Sprintf("post %d", id))
		}
		if authorID != editorID {
			return errors.Wrapf(models.ErrForbidden, "user %d is not the author of post %d", editorID, id)
		}
		if strings.TrimSpace(upd.Text) == "" {
			return models.NewValidationError("text", "this field is required")
		}

		updated, err = scanPost(tx.QueryRow(ctx, `
			UPDATE posts
			SET text=$2, group_id=$3, image=COALESCE($4, image)
			WHERE id=$1
			RETURNING `+postColumns,
			id, upd.Text, upd.GroupID, upd.Image))
		return mapErr(err, "update post")
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeletePost полагается на ON DELETE CASCADE для комментариев.
func (s *PostgresStorage) DeletePost(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id=$1`, id)
	if err != nil {
		return mapErr(err, "delete post")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrNotFound, "post %d", id)
	}
	return nil
}

func (s *PostgresStorage) ListPosts(ctx context.Context, filter storage.PostFilter, limit, offset int) (*models.PaginatedPosts, error) {
	where, args := buildWhere(filter)

	// Подсчет общего количества
	var totalCount int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`+where, args...).Scan(&totalCount)
	if err != nil {
		return nil, mapErr(err, "count posts")
	}

	posts := []*models.Post{}
	if offset < 0 || offset >= totalCount || limit <= 0 {
		return &models.PaginatedPosts{Posts: posts, TotalCount: totalCount}, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM posts%s
		ORDER BY pub_date DESC, id DESC
		LIMIT $%d OFFSET $%d`, postColumns, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, mapErr(err, "list posts")
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.PaginatedPosts{
		Posts:      posts,
		TotalCount: totalCount,
	}, nil
}

func buildWhere(filter storage.PostFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.GroupID != nil {
		add("group_id = $%d", *filter.GroupID)
	}
	if filter.AuthorID != nil {
		add("author_id = $%d", *filter.AuthorID)
	}
	if filter.FollowerID != nil {
		add("author_id IN (SELECT author_id FROM follows WHERE user_id = $%d)", *filter.FollowerID)
	}
	if filter.Text != "" {
		add("strpos(lower(text), lower($%d)) > 0", filter.Text)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStorage) CreateComment(ctx context.Context, comment *models.Comment) error {
	if strings.TrimSpace(comment.Text) == "" {
		return models.NewValidationError("text", "this field is required")
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO comments (post_id, author_id, text)
			VALUES ($1, $2, $3)
			RETURNING id, created`,
			comment.PostID, comment.AuthorID, comment.Text).Scan(&comment.ID, &comment.Created)
		return mapErr(err, "create comment")
	})
}

func (s *PostgresStorage) GetComments(ctx context.Context, postID int64) ([]*models.Comment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, post_id, author_id, text, created
		FROM comments
		WHERE post_id=$1
		ORDER BY created DESC, id DESC`, postID)
	if err != nil {
		return nil, mapErr(err, "get comments")
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Text, &c.Created); err != nil {
			return nil, err
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

func (s *PostgresStorage) CreateFollow(ctx context.Context, userID, authorID int64) (*models.Follow, error) {
	if userID == authorID {
		return nil, models.NewValidationError("author", "cannot follow yourself")
	}
	f := &models.Follow{UserID: userID, AuthorID: authorID}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO follows (user_id, author_id)
			VALUES ($1, $2)
			RETURNING id`, userID, authorID).Scan(&f.ID)
		return mapErr(err, fmt.Sprintf("follow %d -> %d", userID, authorID))
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *PostgresStorage) DeleteFollow(ctx context.Context, userID, authorID int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM follows WHERE user_id=$1 AND author_id=$2`, userID, authorID)
		return mapErr(err, "delete follow")
	})
}

func (s *PostgresStorage) IsFollowing(ctx context.Context, userID, authorID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM follows WHERE user_id=$1 AND author_id=$2)`,
		userID, authorID).Scan(&ok)
	if err != nil {
		return false, mapErr(err, "is following")
	}
	return ok, nil
}

func (s *PostgresStorage) ListFollows(ctx context.Context, userID int64) ([]*models.Follow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, author_id
		FROM follows
		WHERE user_id=$1
		ORDER BY id`, userID)
	if err != nil {
		return nil, mapErr(err, "list follows")
	}
	defer rows.Close()

	var follows []*models.Follow
	for rows.Next() {
		var f models.Follow
		if err := rows.Scan(&f.ID, &f.UserID, &f.AuthorID); err != nil {
			return nil, err
		}
		follows = append(follows, &f)
	}
	return follows, rows.Err()
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

func scanPost(row pgx.Row) (*models.Post, error) {
	var p models.Post
	if err := row.Scan(&p.ID, &p.Text, &p.PubDate, &p.AuthorID, &p.GroupID, &p.Image); err != nil {
		return nil, err
	}
	return &p, nil
}
