package services

import (
	"context"

	"github.com/baharkarakas/booklend/internal/models"
	"github.com/baharkarakas/booklend/internal/policy"
	repo "github.com/baharkarakas/booklend/internal/repository"
)

type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type BookRef struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// RequestView is the shape every caller of the request API relies on.
type RequestView struct {
	ID       string        `json:"id"`
	FromUser UserRef       `json:"fromUser"`
	ToUser   UserRef       `json:"toUser"`
	Book     BookRef       `json:"book"`
	Status   policy.Status `json:"status"`
}

type BookView struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	IsAvailable bool    `json:"isAvailable"`
	Owner       UserRef `json:"owner"`
}

// nameCache resolves display names once per call. Unknown users keep an
// empty name rather than failing the whole view.
type nameCache struct {
	users repo.Users
	names map[string]string
}

func newNameCache(users repo.Users) *nameCache {
	return &nameCache{users: users, names: map[string]string{}}
}

func (c *nameCache) ref(ctx context.Context, id string) UserRef {
	if n, ok := c.names[id]; ok {
		return UserRef{ID: id, Name: n}
	}
	var name string
	if c.users != nil {
		if u, err := c.users.GetByID(ctx, id); err == nil {
			name = u.Username
		}
	}
	c.names[id] = name
	return UserRef{ID: id, Name: name}
}

func requestView(ctx context.Context, names *nameCache, r models.Request, b models.Book) RequestView {
	return RequestView{
		ID:       r.ID,
		FromUser: names.ref(ctx, r.FromUserID),
		ToUser:   names.ref(ctx, r.ToUserID),
		Book:     BookRef{ID: r.BookID, Title: b.Title, Author: b.Author},
		Status:   r.Status,
	}
}

func bookView(ctx context.Context, names *nameCache, b models.Book) BookView {
	return BookView{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		IsAvailable: b.IsAvailable,
		Owner:       names.ref(ctx, b.OwnerID),
	}
}
