package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vrtuned-go/vrtuned/internal/tune"
)

func action(i int) tune.Action {
	return tune.Action{
		Domain:  "cpu",
		Tunable: "governor",
		From:    fmt.Sprintf("v%d", i),
		To:      fmt.Sprintf("v%d", i+1),
		Time:    time.Now(),
	}
}

func TestHistoryKeepsOrder(t *testing.T) {
	h := NewHistory(8)
	for i := 0; i < 3; i++ {
		h.Add(action(i))
	}

	all := h.All()
	assert.Len(t, all, 3)
	assert.Equal(t, "v0", all[0].From)
	assert.Equal(t, "v2", all[2].From)
	assert.Equal(t, 3, h.Len())
}

func TestHistoryDropsOldest(t *testing.T) {
	h := NewHistory(4)
	for i := 0; i < 10; i++ {
		h.Add(action(i))
	}

	all := h.All()
	assert.Len(t, all, 4)
	assert.Equal(t, "v6", all[0].From, "oldest retained entry")
	assert.Equal(t, "v9", all[3].From, "newest entry")
}

func TestHistoryDefaultSize(t *testing.T) {
	h := NewHistory(0)
	for i := 0; i < 300; i++ {
		h.Add(action(i))
	}
	assert.Equal(t, 256, h.Len())
}

func TestHistoryEmpty(t *testing.T) {
	h := NewHistory(8)
	assert.Empty(t, h.All())
	assert.Equal(t, 0, h.Len())
}
