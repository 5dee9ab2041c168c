package live

import (
	"testing"
	"time"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestHub(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe(1)
	other, cancelOther := hub.Subscribe(2)
	defer cancelOther()
	assert.Equal(t, 1, hub.Subscribers(1))

	comment := &models.Comment{ID: 10, PostID: 1, Text: "Тестовый комментарий"}
	hub.Publish(comment)

	select {
	case received := <-ch:
		assert.Equal(t, comment.ID, received.ID)
	case <-time.After(time.Second):
		t.Fatal("Таймаут ожидания комментария")
	}

	select {
	case <-other:
		t.Fatal("Комментарий не должен попасть подписчику другого поста")
	default:
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open, "Канал должен быть закрыт")
	assert.Zero(t, hub.Subscribers(1))

	// публикация без подписчиков и переполнение буфера не блокируют
	hub.Publish(comment)
	for i := 0; i < subscriberBuffer*2; i++ {
		hub.Publish(&models.Comment{ID: int64(i), PostID: 2})
	}
	assert.Len(t, other, subscriberBuffer)
}
