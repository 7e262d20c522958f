package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communitybot/pkg/logx"
)

type sentMessage struct {
	channelID string
	content   string
}

type fakeSink struct {
	sends       []sentMessage
	edits       []sentMessage
	threads     []string
	channels    map[string]*discordgo.Channel
	sendErrOn   int // 1-based send index that fails, 0 = never
	editErr     error
	threadErr   error
	sendCounter int
}

func (f *fakeSink) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sendCounter++
	if f.sendErrOn != 0 && f.sendCounter == f.sendErrOn {
		return nil, errors.New("send failed")
	}
	f.sends = append(f.sends, sentMessage{channelID, content})
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", f.sendCounter), ChannelID: channelID}, nil
}

func (f *fakeSink) ChannelMessageEdit(channelID, messageID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edits = append(f.edits, sentMessage{channelID, content})
	return &discordgo.Message{ID: messageID, ChannelID: channelID}, nil
}

func (f *fakeSink) MessageThreadStart(channelID, messageID, name string, _ int, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	f.threads = append(f.threads, name)
	return &discordgo.Channel{ID: "thread-" + messageID, Name: name}, nil
}

func (f *fakeSink) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, errors.New("unknown channel")
	}
	return ch, nil
}

type fakeResponder struct {
	response string
	err      error
	name     string
	asked    []string
}

func (f *fakeResponder) Respond(_ context.Context, _, userMessage string) (string, error) {
	f.asked = append(f.asked, userMessage)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeResponder) GenerateThreadName(_ context.Context, _, username string) string {
	if f.name != "" {
		return f.name
	}
	return "Chat with " + username
}

type fakeTranscripts struct {
	records []sentMessage // channelID = threadID, content = role + ":" + content
}

func (f *fakeTranscripts) RecordMessage(_ context.Context, threadID, _, role, content string) error {
	f.records = append(f.records, sentMessage{threadID, role + ":" + content})
	return nil
}

func newTestBot(sink *fakeSink, resp *fakeResponder, store transcriptRecorder) *Bot {
	return &Bot{
		session:   sink,
		agent:     resp,
		store:     store,
		channelID: "chan-1",
		maxChars:  1800,
		logger:    logx.NewLogger("discord"),
	}
}

func userMessage(channelID, content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "orig-1",
		ChannelID: channelID,
		Content:   content,
		Author:    &discordgo.User{ID: "user-1", Username: "sam"},
	}
}

func TestHandleMessageHappyPath(t *testing.T) {
	sink := &fakeSink{}
	resp := &fakeResponder{response: "short answer", name: "Password help"}
	bot := newTestBot(sink, resp, nil)

	bot.handleMessage(context.Background(), userMessage("chan-1", "how do I reset?"))

	require.Equal(t, []string{"Password help"}, sink.threads)
	require.Len(t, sink.sends, 1)
	assert.Equal(t, "thread-orig-1", sink.sends[0].channelID)
	assert.Equal(t, placeholderText, sink.sends[0].content)

	require.Len(t, sink.edits, 1)
	assert.Equal(t, "short answer", sink.edits[0].content)
	assert.Equal(t, []string{"how do I reset?"}, resp.asked)
}

func TestHandleMessageIgnoresBots(t *testing.T) {
	sink := &fakeSink{}
	bot := newTestBot(sink, &fakeResponder{response: "x"}, nil)

	msg := userMessage("chan-1", "hi")
	msg.Author.Bot = true
	bot.handleMessage(context.Background(), msg)

	assert.Empty(t, sink.sends)
	assert.Empty(t, sink.threads)
}

func TestHandleMessageIgnoresOtherChannels(t *testing.T) {
	sink := &fakeSink{channels: map[string]*discordgo.Channel{
		"chan-2": {ID: "chan-2", Type: discordgo.ChannelTypeGuildText},
	}}
	bot := newTestBot(sink, &fakeResponder{response: "x"}, nil)

	bot.handleMessage(context.Background(), userMessage("chan-2", "hi"))
	assert.Empty(t, sink.sends)
}

func TestHandleMessageReusesThread(t *testing.T) {
	sink := &fakeSink{channels: map[string]*discordgo.Channel{
		"thread-9": {ID: "thread-9", Type: discordgo.ChannelTypeGuildPublicThread, ParentID: "chan-1"},
	}}
	resp := &fakeResponder{response: "follow-up answer"}
	bot := newTestBot(sink, resp, nil)

	bot.handleMessage(context.Background(), userMessage("thread-9", "and then?"))

	assert.Empty(t, sink.threads)
	require.Len(t, sink.sends, 1)
	assert.Equal(t, "thread-9", sink.sends[0].channelID)
	require.Len(t, sink.edits, 1)
	assert.Equal(t, "follow-up answer", sink.edits[0].content)
}

func TestHandleMessageAgentError(t *testing.T) {
	sink := &fakeSink{}
	bot := newTestBot(sink, &fakeResponder{err: errors.New("backend down")}, nil)

	bot.handleMessage(context.Background(), userMessage("chan-1", "hi"))

	require.Len(t, sink.edits, 1)
	assert.Equal(t, errorMessagePrefix+"backend down", sink.edits[0].content)
}

func TestDeliverSplitsLongResponse(t *testing.T) {
	sink := &fakeSink{}
	long := strings.Repeat("All work and no play makes for dull bots. ", 100)
	bot := newTestBot(sink, &fakeResponder{response: long}, nil)

	bot.handleMessage(context.Background(), userMessage("chan-1", "tell me everything"))

	// Placeholder edit carries chunk 1; the rest are fresh sends after
	// the placeholder itself.
	require.Len(t, sink.edits, 1)
	require.Greater(t, len(sink.sends), 1)
	for _, send := range sink.sends[1:] {
		assert.LessOrEqual(t, len(send.content), 1800)
	}
	reassembled := sink.edits[0].content
	for _, send := range sink.sends[1:] {
		reassembled += send.content
	}
	assert.Contains(t, reassembled, "dull bots")
}

func TestDeliverStopsOnFirstSendError(t *testing.T) {
	// Placeholder is send 1; chunk sends start at 2. Failing send 3
	// must stop delivery of later chunks.
	sink := &fakeSink{sendErrOn: 3}
	long := strings.Repeat("line of filler text for the splitter\n", 300)
	bot := newTestBot(sink, &fakeResponder{response: long}, nil)

	bot.handleMessage(context.Background(), userMessage("chan-1", "go"))

	require.Len(t, sink.edits, 1)
	// Only the placeholder and the first follow-up send landed.
	assert.Len(t, sink.sends, 2)
}

func TestHandleMessageRecordsTranscripts(t *testing.T) {
	sink := &fakeSink{}
	store := &fakeTranscripts{}
	bot := newTestBot(sink, &fakeResponder{response: "the answer"}, store)

	bot.handleMessage(context.Background(), userMessage("chan-1", "the question"))

	require.Len(t, store.records, 2)
	assert.Equal(t, "user:the question", store.records[0].content)
	assert.Equal(t, "assistant:the answer", store.records[1].content)
	assert.Equal(t, "thread-orig-1", store.records[0].channelID)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 100))

	long := strings.Repeat("x", 120)
	got := Truncate(long, 100)
	assert.Len(t, got, 100)
	assert.True(t, strings.HasSuffix(got, truncationSuffix))
	assert.Equal(t, strings.Repeat("x", 100-len(truncationSuffix)),
		strings.TrimSuffix(got, truncationSuffix))
}

func TestTruncateNeverExceedsLimit(t *testing.T) {
	// Every limit the ceiling validation accepts must produce output of at
	// most limit bytes, with no panic at limits under the suffix size.
	long := strings.Repeat("x", 120)
	for _, limit := range []int{1, 5, 10, len(truncationSuffix), 50, 119} {
		got := Truncate(long, limit)
		assert.LessOrEqual(t, len(got), limit, "limit %d", limit)
	}
	assert.Equal(t, "", Truncate(long, 0))
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	text := strings.Repeat("é", 100) // two bytes per rune
	for _, limit := range []int{5, 31, 50} {
		got := Truncate(text, limit)
		assert.LessOrEqual(t, len(got), limit, "limit %d", limit)
		assert.True(t, utf8.ValidString(got), "limit %d", limit)
	}
}
