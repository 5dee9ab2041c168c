package models

import "time"

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Group struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// Post - запись в ленте. Author и Group заполняются при сборке ленты.
type Post struct {
	ID       int64     `json:"id"`
	Text     string    `json:"text"`
	PubDate  time.Time `json:"pubDate"`
	AuthorID int64     `json:"authorId"`
	GroupID  *int64    `json:"groupId"`
	Image    string    `json:"image,omitempty"`

	Author *User  `json:"author,omitempty"`
	Group  *Group `json:"group,omitempty"`
}

type Comment struct {
	ID       int64     `json:"id"`
	PostID   int64     `json:"postId"`
	AuthorID int64     `json:"authorId"`
	Text     string    `json:"text"`
	Created  time.Time `json:"created"`

	Author *User `json:"author,omitempty"`
}

type Follow struct {
	ID       int64 `json:"id"`
	UserID   int64 `json:"userId"`
	AuthorID int64 `json:"authorId"`
}

// PostUpdate - изменяемые автором поля поста.
type PostUpdate struct {
	Text    string
	GroupID *int64
	Image   *string
}

type PaginatedPosts struct {
	Posts      []*Post `json:"posts"`
	TotalCount int     `json:"totalCount"`
}

// Page - одна страница ленты, номера страниц начинаются с 1.
type Page struct {
	Posts       []*Post `json:"posts"`
	Number      int     `json:"number"`
	PerPage     int     `json:"perPage"`
	NumPages    int     `json:"numPages"`
	TotalCount  int     `json:"totalCount"`
	HasNext     bool    `json:"hasNext"`
	HasPrevious bool    `json:"hasPrevious"`
}
