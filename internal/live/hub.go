// Package live рассылает новые комментарии подписчикам поста.
package live

import (
	"sync"

	"github.com/ButyrinIA/blog/internal/models"
)

const subscriberBuffer = 8

// Hub хранит каналы подписчиков по id поста. Медленный подписчик
// пропускает сообщения, а не блокирует публикацию.
type Hub struct {
	subscribers map[int64]map[chan *models.Comment]struct{}
	mu          sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[int64]map[chan *models.Comment]struct{})}
}

// Subscribe возвращает канал новых комментариев и функцию отписки.
func (h *Hub) Subscribe(postID int64) (<-chan *models.Comment, func()) {
	ch := make(chan *models.Comment, subscriberBuffer)

	h.mu.Lock()
	if _, ok := h.subscribers[postID]; !ok {
		h.subscribers[postID] = make(map[chan *models.Comment]struct{})
	}
	h.subscribers[postID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			subs := h.subscribers[postID]
			delete(subs, ch)
			if len(subs) == 0 {
				delete(h.subscribers, postID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) Publish(comment *models.Comment) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[comment.PostID] {
		select {
		case ch <- comment:
		default:
		}
	}
}

// Subscribers - число подписчиков поста.
func (h *Hub) Subscribers(postID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[postID])
}
