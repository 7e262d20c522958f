// Package memory provides bounded per-thread conversation history. Each
// Discord thread gets its own conversation; old turns are trimmed away while
// system messages are always preserved so the bot keeps its persona.
package memory

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"communitybot/pkg/agent/llm"
)

// DefaultMaxMessages bounds how many non-system messages a conversation
// keeps before the oldest turns are dropped.
const DefaultMaxMessages = 20

// DefaultTokenBudget bounds the approximate token size of a conversation.
const DefaultTokenBudget = 8000

// Conversation holds the message history for one thread.
type Conversation struct {
	mu          sync.Mutex
	messages    []llm.CompletionMessage
	maxMessages int
	tokenBudget int
	counter     *TokenCounter
}

// NewConversation creates a conversation seeded with an optional system
// prompt. maxMessages and tokenBudget of zero use the package defaults.
func NewConversation(systemPrompt string, maxMessages, tokenBudget int) *Conversation {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}

	c := &Conversation{
		maxMessages: maxMessages,
		tokenBudget: tokenBudget,
		counter:     NewTokenCounter(),
	}
	if systemPrompt != "" {
		c.messages = append(c.messages, llm.NewSystemMessage(systemPrompt))
	}
	return c
}

// AddUser appends a user message and trims if needed.
func (c *Conversation) AddUser(content string) {
	c.add(llm.NewUserMessage(content))
}

// AddAssistant appends an assistant message and trims if needed.
func (c *Conversation) AddAssistant(content string) {
	c.add(llm.NewAssistantMessage(content))
}

func (c *Conversation) add(msg llm.CompletionMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	c.trimLocked()
}

// Messages returns a copy of the conversation suitable for a completion
// request.
func (c *Conversation) Messages() []llm.CompletionMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.CompletionMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages including system messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Clear drops everything except system messages.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.messages[:0]
	for _, m := range c.messages {
		if m.Role == llm.RoleSystem {
			kept = append(kept, m)
		}
	}
	c.messages = kept
}

// trimLocked drops the oldest non-system messages until the conversation
// fits both the message count and token budget. The caller holds the lock.
func (c *Conversation) trimLocked() {
	for c.overBudgetLocked() {
		idx := -1
		for i, m := range c.messages {
			if m.Role != llm.RoleSystem {
				idx = i
				break
			}
		}
		if idx == -1 {
			return
		}
		c.messages = append(c.messages[:idx], c.messages[idx+1:]...)
	}
}

func (c *Conversation) overBudgetLocked() bool {
	nonSystem := 0
	tokens := 0
	for _, m := range c.messages {
		tokens += c.counter.Count(m.Content)
		if m.Role != llm.RoleSystem {
			nonSystem++
		}
	}
	// A single oversized turn is kept; trimming it would leave nothing to
	// answer from.
	if nonSystem <= 1 {
		return false
	}
	return nonSystem > c.maxMessages || tokens > c.tokenBudget
}

// Store maps thread IDs to their conversations.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	systemPrompt  string
	maxMessages   int
	tokenBudget   int
}

// NewStore creates a conversation store. New conversations are seeded with
// the given system prompt.
func NewStore(systemPrompt string, maxMessages, tokenBudget int) *Store {
	return &Store{
		conversations: make(map[string]*Conversation),
		systemPrompt:  systemPrompt,
		maxMessages:   maxMessages,
		tokenBudget:   tokenBudget,
	}
}

// Get returns the conversation for a thread, creating it on first use.
func (s *Store) Get(threadID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[threadID]
	if !ok {
		conv = NewConversation(s.systemPrompt, s.maxMessages, s.tokenBudget)
		s.conversations[threadID] = conv
	}
	return conv
}

// Forget removes a thread's conversation, releasing its memory.
func (s *Store) Forget(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, threadID)
}

// Len returns the number of tracked conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// TokenCounter provides approximate token counting for budget enforcement.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter. Bedrock and Ollama models do not
// publish tokenizers, so GPT-4 encoding serves as a close approximation for
// all backends.
func NewTokenCounter() *TokenCounter {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{codec: codec}
}

// Count returns the number of tokens in text, falling back to a
// character-based estimate (4 chars per token) if no codec is available.
func (tc *TokenCounter) Count(text string) int {
	if tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}
