// Package discord delivers agent replies to Discord. Each question in
// the watched channel gets its own thread; long replies are split into
// fence-safe chunks and posted sequentially.
package discord

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"communitybot/pkg/agent"
	"communitybot/pkg/config"
	"communitybot/pkg/logx"
	"communitybot/pkg/persistence"
	"communitybot/pkg/splitter"
)

const (
	placeholderText      = "Processing... 🤖"
	threadArchiveMinutes = 60
	respondTimeout       = 5 * time.Minute
	errorMessagePrefix   = "Error contacting AI backend: "
)

// sink is the slice of the discordgo session the bot uses. Keeping it
// narrow lets tests drive the handler without a gateway connection.
type sink interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageThreadStart(channelID, messageID, name string, archiveDuration int, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// responder is the slice of the agent the bot uses.
type responder interface {
	Respond(ctx context.Context, threadID, userMessage string) (string, error)
	GenerateThreadName(ctx context.Context, message, username string) string
}

// transcriptRecorder persists question/answer pairs. May be nil.
type transcriptRecorder interface {
	RecordMessage(ctx context.Context, threadID, userID, role, content string) error
}

// Bot handles message events for one watched channel.
type Bot struct {
	session   sink
	agent     responder
	store     transcriptRecorder
	channelID string
	maxChars  int
	logger    *logx.Logger
}

// NewBot wires the handler. store may be nil to disable transcripts.
func NewBot(session *discordgo.Session, ag *agent.Agent, cfg *config.Settings, store *persistence.Store) *Bot {
	b := &Bot{
		session:   session,
		agent:     ag,
		channelID: cfg.DiscordChannelID,
		maxChars:  cfg.MaxResponseChars,
		logger:    logx.NewLogger("discord"),
	}
	if store != nil {
		b.store = store
	}
	return b
}

// Attach registers the bot's handlers on the session.
func (b *Bot) Attach(session *discordgo.Session) {
	session.AddHandler(b.onReady)
	session.AddHandler(b.OnMessageCreate)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("logged in as %s#%s", r.User.Username, r.User.Discriminator)
}

// OnMessageCreate is the discordgo MessageCreate handler.
func (b *Bot) OnMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), respondTimeout)
	defer cancel()
	b.handleMessage(ctx, m.Message)
}

// handleMessage runs the full reply flow for one incoming message:
// resolve the thread, post a placeholder, ask the agent, deliver the
// split reply.
func (b *Bot) handleMessage(ctx context.Context, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	threadID, ok := b.resolveThread(ctx, m)
	if !ok {
		return
	}

	placeholder, err := b.session.ChannelMessageSend(threadID, placeholderText)
	if err != nil {
		b.logger.Error("failed to post placeholder in %s: %v", threadID, err)
		return
	}

	b.recordTranscript(ctx, threadID, m.Author.ID, "user", m.Content)

	response, err := b.agent.Respond(ctx, threadID, m.Content)
	if err != nil {
		b.logger.Error("agent failed for thread %s: %v", threadID, err)
		if _, editErr := b.session.ChannelMessageEdit(threadID, placeholder.ID, Truncate(errorMessagePrefix+err.Error(), b.maxChars)); editErr != nil {
			b.logger.Error("failed to surface agent error in %s: %v", threadID, editErr)
		}
		return
	}

	b.recordTranscript(ctx, threadID, "", "assistant", response)
	b.deliver(threadID, placeholder.ID, response)
}

// resolveThread returns the thread to answer in. Messages in the
// watched channel get a fresh thread named by the agent; messages in a
// thread under the watched channel reuse that thread. Everything else
// is ignored.
func (b *Bot) resolveThread(ctx context.Context, m *discordgo.Message) (string, bool) {
	if m.ChannelID == b.channelID {
		name := b.agent.GenerateThreadName(ctx, m.Content, m.Author.Username)
		thread, err := b.session.MessageThreadStart(m.ChannelID, m.ID, name, threadArchiveMinutes)
		if err != nil {
			b.logger.Error("failed to create thread for message %s: %v", m.ID, err)
			return "", false
		}
		b.logger.Info("created thread %s (%q)", thread.ID, name)
		return thread.ID, true
	}

	channel, err := b.session.Channel(m.ChannelID)
	if err != nil || channel == nil {
		return "", false
	}
	if channel.IsThread() && channel.ParentID == b.channelID {
		return m.ChannelID, true
	}
	return "", false
}

// deliver splits the response and posts it: the first chunk replaces
// the placeholder, the rest are sent in order. Sending stops on the
// first failure since later chunks are meaningless without earlier
// ones.
func (b *Bot) deliver(threadID, placeholderID, response string) {
	chunks := splitter.Split(response, b.maxChars)
	if _, err := b.session.ChannelMessageEdit(threadID, placeholderID, chunks[0]); err != nil {
		b.logger.Error("failed to edit placeholder in %s: %v", threadID, err)
		if _, sendErr := b.session.ChannelMessageSend(threadID, Truncate(errorMessagePrefix+err.Error(), b.maxChars)); sendErr != nil {
			b.logger.Error("failed to surface delivery error in %s: %v", threadID, sendErr)
		}
		return
	}
	for i, chunk := range chunks[1:] {
		if _, err := b.session.ChannelMessageSend(threadID, chunk); err != nil {
			b.logger.Error("failed to send chunk %d/%d in %s, stopping: %v", i+2, len(chunks), threadID, err)
			return
		}
	}
	if len(chunks) > 1 {
		b.logger.Debug("delivered %d chunks to %s", len(chunks), threadID)
	}
}

func (b *Bot) recordTranscript(ctx context.Context, threadID, userID, role, content string) {
	if b.store == nil {
		return
	}
	if err := b.store.RecordMessage(ctx, threadID, userID, role, content); err != nil {
		b.logger.Warn("failed to record %s message in %s: %v", role, threadID, err)
	}
}

// truncationSuffix marks shortened text. The ellipsis is three bytes.
const truncationSuffix = "… (truncated)"

// Truncate shortens text to at most limit bytes, appending a marker when
// it fits. Used for surfaces that cannot take multiple chunks, like the
// single-message error paths. Cuts back off mid-rune boundaries.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	cut := limit - len(truncationSuffix)
	if cut <= 0 {
		return text[:runeBoundary(text, limit)]
	}
	return text[:runeBoundary(text, cut)] + truncationSuffix
}

// runeBoundary walks index i back to the start of the rune it falls inside.
func runeBoundary(text string, i int) int {
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}
