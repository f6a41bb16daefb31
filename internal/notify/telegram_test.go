package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
)

type mockSender struct {
	mu       sync.Mutex
	messages []string
	chatIDs  []int64
	err      error
}

func (m *mockSender) SendMessage(chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, text)
	m.chatIDs = append(m.chatIDs, chatID)
	return m.err
}

func (m *mockSender) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.messages))
	copy(out, m.messages)
	return out
}

var enabledConfig = config.TelegramConfig{Enabled: true, BotToken: "123:abc", ChatID: 42}

func newTestNotifier(t *testing.T, opts *Options) (*Telegram, *mockSender) {
	t.Helper()
	sender := &mockSender{}
	if opts == nil {
		opts = &Options{}
	}
	opts.Sender = sender
	n, err := NewTelegram(enabledConfig, opts)
	require.NoError(t, err)
	n.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = n.Stop(ctx)
	})
	return n, sender
}

func view(id models.PlatformID, status models.PlatformStatus, errMsg string) *models.PlatformView {
	return &models.PlatformView{Platform: id, Status: status, Error: errMsg}
}

func TestTelegram_StatusTransitions(t *testing.T) {
	n, sender := newTestNotifier(t, nil)

	n.OnPlatform(view(models.PlatformYouTube, models.StatusLive, ""))
	n.OnPlatform(view(models.PlatformYouTube, models.StatusLive, ""))
	n.OnPlatform(view(models.PlatformYouTube, models.StatusError, "youtube auth failed: API key not valid"))
	n.OnPlatform(view(models.PlatformYouTube, models.StatusError, "still failing"))
	n.OnPlatform(view(models.PlatformYouTube, models.StatusLive, ""))

	require.Eventually(t, func() bool { return len(sender.Messages()) == 2 }, time.Second, 10*time.Millisecond)
	msgs := sender.Messages()
	assert.Equal(t, "⚠️ YouTube is failing: youtube auth failed: API key not valid", msgs[0])
	assert.Equal(t, "✅ YouTube is live again", msgs[1])
	assert.Equal(t, int64(42), sender.chatIDs[0])
}

func TestTelegram_FirstStatusIsSilent(t *testing.T) {
	n, sender := newTestNotifier(t, nil)

	n.OnPlatform(view(models.PlatformTikTok, models.StatusError, "boom"))
	n.OAuthConnected(context.Background(), models.PlatformCredentials{Platform: models.PlatformTikTok, OpenID: "oid-1"})

	require.Eventually(t, func() bool { return len(sender.Messages()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "🔗 TikTok account connected (open_id oid-1)", sender.Messages()[0])
}

func TestTelegram_FlappingIsDeduplicated(t *testing.T) {
	n, sender := newTestNotifier(t, nil)

	n.OnPlatform(view(models.PlatformTikTok, models.StatusLive, ""))
	for i := 0; i < 3; i++ {
		n.OnPlatform(view(models.PlatformTikTok, models.StatusError, "boom"))
		n.OnPlatform(view(models.PlatformTikTok, models.StatusLive, ""))
	}

	require.Eventually(t, func() bool { return len(sender.Messages()) == 2 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, sender.Messages(), 2)
}

func TestTelegram_SendFailureRecorded(t *testing.T) {
	m := metrics.NewMetrics("pulseboard_test")
	sender := &mockSender{err: errors.New("bot was blocked by the user")}
	n, err := NewTelegram(enabledConfig, &Options{Sender: sender, Metrics: m})
	require.NoError(t, err)
	n.Start()
	defer func() { _ = n.Stop(context.Background()) }()

	n.OAuthConnected(context.Background(), models.PlatformCredentials{Platform: models.PlatformTikTok})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ErrorCounter.WithLabelValues("send_failed", "notify")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTelegram_Disabled(t *testing.T) {
	for _, cfg := range []config.TelegramConfig{
		{},
		{Enabled: true, ChatID: 42},
		{Enabled: true, BotToken: "123:abc"},
		{BotToken: "123:abc", ChatID: 42},
	} {
		sender := &mockSender{}
		n, err := NewTelegram(cfg, &Options{Sender: sender})
		require.NoError(t, err)
		assert.False(t, n.Enabled())

		n.Start()
		n.OnPlatform(view(models.PlatformYouTube, models.StatusLive, ""))
		n.OnPlatform(view(models.PlatformYouTube, models.StatusError, "x"))
		n.OAuthConnected(context.Background(), models.PlatformCredentials{Platform: models.PlatformTikTok})
		require.NoError(t, n.Stop(context.Background()))
		assert.Empty(t, sender.Messages())
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
}

func TestDedupLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	dl := NewDedupLimiter(time.Minute)
	dl.now = func() time.Time { return now }

	assert.True(t, dl.CanSend("a"))
	assert.False(t, dl.CanSend("a"))
	assert.True(t, dl.CanSend("b"))

	now = now.Add(2 * time.Minute)
	dl.Cleanup()
	assert.True(t, dl.CanSend("a"))
}
