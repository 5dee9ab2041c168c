// Команда seed наполняет хранилище пользователями, группами и постами
// из YAML-файла, выпускает токен для пользователя и ищет посты по тексту.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ButyrinIA/blog/internal/auth"
	"github.com/ButyrinIA/blog/internal/config"
	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/ButyrinIA/blog/internal/storage/memory"
	"github.com/ButyrinIA/blog/internal/storage/postgres"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Users  []string           `yaml:"users"`
	Groups []forms.GroupInput `yaml:"groups"`
	Posts  []seedPost         `yaml:"posts"`
}

type seedPost struct {
	Author string `yaml:"author"`
	Group  string `yaml:"group"`
	Text   string `yaml:"text"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	seedPath := flag.String("file", "", "YAML с пользователями, группами и постами")
	tokenFor := flag.String("token", "", "выпустить токен для пользователя")
	search := flag.String("search", "", "вывести посты, содержащие текст")
	flag.Parse()

	log := logrus.New()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Не удалось загрузить конфигурацию: %v", err)
	}

	ctx := context.Background()
	var store storage.Storage
	if cfg.Storage == "postgres" {
		store, err = postgres.New(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			log.Fatalf("Не удалось инициализировать PostgreSQL: %v", err)
		}
	} else {
		log.Warn("Хранилище memory: данные не переживут завершение команды")
		store = memory.New()
	}
	defer store.Close()

	if *seedPath != "" {
		if err := seed(ctx, store, *seedPath, log); err != nil {
			log.Fatalf("Не удалось загрузить данные: %v", err)
		}
	}

	if *tokenFor != "" {
		user, err := store.GetUserByUsername(ctx, *tokenFor)
		if err != nil {
			log.Fatalf("Пользователь %s: %v", *tokenFor, err)
		}
		token, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).Issue(user.ID)
		if err != nil {
			log.Fatalf("Не удалось выпустить токен: %v", err)
		}
		fmt.Println(token)
	}

	if *search != "" {
		res, err := store.ListPosts(ctx, storage.PostFilter{Text: *search}, cfg.Feed.PostsPerPage, 0)
		if err != nil {
			log.Fatalf("Поиск не удался: %v", err)
		}
		for _, p := range res.Posts {
			fmt.Fprintf(os.Stdout, "%d\t%s\t%s\n", p.ID, p.PubDate.Format("2006-01-02 15:04"), p.Text)
		}
		log.WithField("total", res.TotalCount).Info("Поиск завершен")
	}
}

// seed добавляет записи из файла. Существующие пользователи и группы
// переиспользуются, посты добавляются всегда.
func seed(ctx context.Context, store storage.Storage, path string, log logrus.FieldLogger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}

	users := make(map[string]*models.User, len(f.Users))
	for _, name := range f.Users {
		if err := forms.ValidateUsername(name); err != nil {
			return err
		}
		u := &models.User{Username: name}
		err := store.CreateUser(ctx, u)
		if errors.Is(err, models.ErrConflict) {
			u, err = store.GetUserByUsername(ctx, name)
		}
		if err != nil {
			return errors.Wrapf(err, "user %s", name)
		}
		users[name] = u
	}

	groups := make(map[string]*models.Group, len(f.Groups))
	for _, in := range f.Groups {
		if err := in.Validate(); err != nil {
			return err
		}
		g := &models.Group{Title: in.Title, Slug: in.Slug, Description: in.Description}
		err := store.CreateGroup(ctx, g)
		if errors.Is(err, models.ErrConflict) {
			g, err = store.GetGroupBySlug(ctx, in.Slug)
		}
		if err != nil {
			return errors.Wrapf(err, "group %s", in.Slug)
		}
		groups[g.Slug] = g
	}

	for _, sp := range f.Posts {
		author, ok := users[sp.Author]
		if !ok {
			if author, err = store.GetUserByUsername(ctx, sp.Author); err != nil {
				return errors.Wrapf(err, "author %s", sp.Author)
			}
		}
		in := forms.PostInput{Text: sp.Text}
		if err := in.Validate(); err != nil {
			return err
		}
		post := &models.Post{Text: in.Text, AuthorID: author.ID}
		if sp.Group != "" {
			g, ok := groups[sp.Group]
			if !ok {
				if g, err = store.GetGroupBySlug(ctx, sp.Group); err != nil {
					return errors.Wrapf(err, "group %s", sp.Group)
				}
			}
			post.GroupID = &g.ID
		}
		if err := store.CreatePost(ctx, post); err != nil {
			return errors.Wrap(err, "create post")
		}
	}

	log.WithFields(logrus.Fields{
		"users":  len(users),
		"groups": len(groups),
		"posts":  len(f.Posts),
	}).Info("Данные загружены")
	return nil
}
