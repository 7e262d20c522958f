package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communitybot/pkg/agent/llm"
)

func TestConversationSeedsSystemPrompt(t *testing.T) {
	conv := NewConversation("be helpful", 0, 0)

	msgs := conv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, "be helpful", msgs[0].Content)
}

func TestConversationKeepsTurnOrder(t *testing.T) {
	conv := NewConversation("", 0, 0)
	conv.AddUser("q1")
	conv.AddAssistant("a1")
	conv.AddUser("q2")

	msgs := conv.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "q1", msgs[0].Content)
	assert.Equal(t, "a1", msgs[1].Content)
	assert.Equal(t, "q2", msgs[2].Content)
}

func TestTrimDropsOldestButKeepsSystem(t *testing.T) {
	conv := NewConversation("persona", 4, 0)
	for i := 0; i < 5; i++ {
		conv.AddUser(fmt.Sprintf("q%d", i))
		conv.AddAssistant(fmt.Sprintf("a%d", i))
	}

	msgs := conv.Messages()
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, "persona", msgs[0].Content)

	nonSystem := msgs[1:]
	assert.Len(t, nonSystem, 4)
	// The most recent turns survive.
	assert.Equal(t, "q4", nonSystem[2].Content)
	assert.Equal(t, "a4", nonSystem[3].Content)
}

func TestTrimEnforcesTokenBudget(t *testing.T) {
	// Tiny budget forces trimming down to the latest turns.
	conv := NewConversation("sys", 100, 30)
	long := "The quick brown fox jumps over the lazy dog again and again."
	for i := 0; i < 5; i++ {
		conv.AddUser(long)
	}

	msgs := conv.Messages()
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Less(t, len(msgs), 6)
}

func TestSingleOversizedTurnIsKept(t *testing.T) {
	conv := NewConversation("", 10, 5)
	conv.AddUser("this single message is far larger than the whole token budget allows")

	require.Equal(t, 1, conv.Len())
}

func TestClearKeepsSystemMessages(t *testing.T) {
	conv := NewConversation("persona", 0, 0)
	conv.AddUser("hello")
	conv.AddAssistant("hi")
	conv.Clear()

	msgs := conv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
}

func TestStoreCreatesPerThread(t *testing.T) {
	store := NewStore("persona", 0, 0)

	a := store.Get("thread-a")
	b := store.Get("thread-b")
	assert.NotSame(t, a, b)
	assert.Same(t, a, store.Get("thread-a"))
	assert.Equal(t, 2, store.Len())

	a.AddUser("only in a")
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestStoreForget(t *testing.T) {
	store := NewStore("", 0, 0)
	store.Get("thread-a").AddUser("hello")
	store.Forget("thread-a")
	assert.Equal(t, 0, store.Len())

	// A new conversation starts fresh.
	assert.Equal(t, 0, store.Get("thread-a").Len())
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := NewStore("persona", 0, 0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conv := store.Get(fmt.Sprintf("thread-%d", n%4))
			conv.AddUser("hello")
			conv.Messages()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, store.Len())
}

func TestTokenCounterCountsRoughly(t *testing.T) {
	tc := NewTokenCounter()
	assert.Equal(t, 0, tc.Count(""))
	short := tc.Count("hello")
	long := tc.Count("hello world, this is a longer sentence with more words")
	assert.Greater(t, long, short)
}
