package feed

import (
	"context"
	"time"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/pkg/errors"
)

// Loaders группирует запросы авторов и групп, нужные для отображения ленты,
// в один запрос к хранилищу на каждый тип сущности.
type Loaders struct {
	Users  *dataloader.Loader[int64, *models.User]
	Groups *dataloader.Loader[int64, *models.Group]
}

type loadersKey struct{}

func NewLoaders(store storage.Storage) *Loaders {
	return &Loaders{
		Users: dataloader.NewBatchedLoader(
			func(ctx context.Context, ids []int64) []*dataloader.Result[*models.User] {
				users, err := store.GetUsersByIDs(ctx, ids)
				byID := make(map[int64]*models.User, len(users))
				for _, u := range users {
					byID[u.ID] = u
				}
				return results(ids, byID, err, "user")
			},
			dataloader.WithWait[int64, *models.User](time.Millisecond),
		),
		Groups: dataloader.NewBatchedLoader(
			func(ctx context.Context, ids []int64) []*dataloader.Result[*models.Group] {
				groups, err := store.GetGroupsByIDs(ctx, ids)
				byID := make(map[int64]*models.Group, len(groups))
				for _, g := range groups {
					byID[g.ID] = g
				}
				return results(ids, byID, err, "group")
			},
			dataloader.WithWait[int64, *models.Group](time.Millisecond),
		),
	}
}

func results[V any](ids []int64, byID map[int64]V, err error, what string) []*dataloader.Result[V] {
	res := make([]*dataloader.Result[V], len(ids))
	for i, id := range ids {
		if err != nil {
			res[i] = &dataloader.Result[V]{Error: err}
			continue
		}
		v, ok := byID[id]
		if !ok {
			res[i] = &dataloader.Result[V]{Error: errors.Wrapf(models.ErrNotFound, "%s %d", what, id)}
			continue
		}
		res[i] = &dataloader.Result[V]{Data: v}
	}
	return res
}

// WithLoaders кладет загрузчики в контекст запроса.
func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey{}, l)
}

// LoadersFrom возвращает загрузчики запроса или создает новые.
func LoadersFrom(ctx context.Context, store storage.Storage) *Loaders {
	if l, ok := ctx.Value(loadersKey{}).(*Loaders); ok && l != nil {
		return l
	}
	return NewLoaders(store)
}
