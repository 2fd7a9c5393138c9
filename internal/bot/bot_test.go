package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/resale-pricer/internal/ebay"
	"github.com/raine/resale-pricer/internal/llm"
	"github.com/raine/resale-pricer/internal/pipeline"
	"github.com/raine/resale-pricer/internal/pricing"
	"github.com/raine/resale-pricer/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const adminID = int64(1)

type botApiMock struct {
	mock.Mock

	mu   sync.Mutex
	sent []string
}

func (m *botApiMock) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, msg.Text)
		m.mu.Unlock()
	}
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *botApiMock) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	resp, _ := args.Get(0).(*tgbotapi.APIResponse)
	return resp, args.Error(1)
}

func (m *botApiMock) GetFileDirectURL(fileID string) (string, error) {
	args := m.Called(fileID)
	return args.String(0), args.Error(1)
}

func (m *botApiMock) sentTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type pricerMock struct {
	mock.Mock
}

func (m *pricerMock) Run(ctx context.Context, req pipeline.Request) (*pricing.Recommendation, error) {
	args := m.Called(ctx, req)
	rec, _ := args.Get(0).(*pricing.Recommendation)
	return rec, args.Error(1)
}

func newTestTg() *botApiMock {
	tg := new(botApiMock)
	tg.On("Send", mock.Anything).Return(tgbotapi.Message{MessageID: 1}, nil)
	tg.On("Request", mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil).Maybe()
	return tg
}

// withFileURLs makes every file id resolve to a URL.
func withFileURLs(tg *botApiMock) *botApiMock {
	tg.On("GetFileDirectURL", mock.Anything).Return("https://files.example/photo.jpg", nil)
	return tg
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:", []byte("test-key-32-bytes-long-ok-test!!"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestBot(t *testing.T, tg *botApiMock, pricer Pricer) *Bot {
	t.Helper()
	b := NewBot(tg, newTestStore(t), pricer, adminID)
	t.Cleanup(b.state.Shutdown)
	return b
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}}
}

func photoUpdate(userID int64, fileID, caption, mediaGroupID string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:         &tgbotapi.User{ID: userID},
		Chat:         &tgbotapi.Chat{ID: userID},
		Caption:      caption,
		MediaGroupID: mediaGroupID,
		Photo: []tgbotapi.PhotoSize{
			{FileID: fileID + "-small", Width: 90, Height: 90},
			{FileID: fileID, Width: 1280, Height: 960},
		},
	}}
}

func mediumRecommendation() *pricing.Recommendation {
	p, lo, hi := 20.0, 15.0, 25.0
	return &pricing.Recommendation{
		Currency:       "USD",
		SuggestedPrice: &p,
		Low:            &lo,
		High:           &hi,
		Confidence:     pricing.ConfidenceMedium,
		Rationale:      pricing.RationaleMedianIQR,
		CompsSample: []pricing.CompSample{
			{Title: "IKEA [Forså] lamp", Price: 19.99, Currency: "USD", URL: "https://www.ebay.com/itm/1"},
		},
	}
}

func TestBot_DropsUsersNotOnWhitelist(t *testing.T) {
	tg := newTestTg()
	pricer := &pricerMock{}
	b := newTestBot(t, tg, pricer)

	b.handleUpdateSync(context.Background(), textUpdate(99, "/start"))
	b.handleUpdateSync(context.Background(), photoUpdate(99, "photo", "", ""))

	assert.Empty(t, tg.sentTexts())
	pricer.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestBot_NilUserStoreServesOnlyAdmin(t *testing.T) {
	tg := newTestTg()
	b := NewBot(tg, nil, &pricerMock{}, adminID)
	defer b.state.Shutdown()

	b.handleUpdateSync(context.Background(), textUpdate(99, "/help"))
	assert.Empty(t, tg.sentTexts())

	b.handleUpdateSync(context.Background(), textUpdate(adminID, "/help"))
	require.Len(t, tg.sentTexts(), 1)
	assert.Contains(t, tg.sentTexts()[0], "up to 6 photos")
}

func TestBot_SinglePhoto(t *testing.T) {
	tg := newTestTg()
	tg.On("GetFileDirectURL", "photo-1").Return("https://api.telegram.org/file/bot123/photo-1.jpg", nil)
	pricer := &pricerMock{}
	pricer.On("Run", mock.Anything, pipeline.Request{
		ImageURLs: []string{"https://api.telegram.org/file/bot123/photo-1.jpg"},
		TitleHint: "ikea lamp",
	}).Return(mediumRecommendation(), nil).Once()
	b := newTestBot(t, tg, pricer)

	b.handleUpdateSync(context.Background(), photoUpdate(adminID, "photo-1", " ikea lamp ", ""))

	sent := tg.sentTexts()
	require.Len(t, sent, 2)
	assert.Equal(t, MsgPricing, sent[0])
	assert.Contains(t, sent[1], "*Suggested price:* 20.00 USD")
	assert.Contains(t, sent[1], "15.00 USD to 25.00 USD")
	assert.Contains(t, sent[1], "1. [IKEA (Forså) lamp](https://www.ebay.com/itm/1) 19.99 USD")
	pricer.AssertExpectations(t)
}

func TestBot_PricingErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"configuration", &pipeline.ConfigurationError{Err: llm.ErrMissingAPIKey}, MsgPricingUnavailable},
		{"extraction", &pipeline.ExtractionError{Err: llm.ErrNoJSONObject}, MsgExtractionFailed},
		{"retrieval", &pipeline.RetrievalError{Err: &ebay.APIError{StatusCode: 500}}, MsgRetrievalFailed},
		{"other", errors.New("boom"), "Unexpected error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := withFileURLs(newTestTg())
			pricer := &pricerMock{}
			pricer.On("Run", mock.Anything, mock.Anything).Return(nil, tt.err)
			b := newTestBot(t, tg, pricer)

			b.handleUpdateSync(context.Background(), photoUpdate(adminID, "p", "", ""))

			sent := tg.sentTexts()
			require.NotEmpty(t, sent)
			assert.Equal(t, tt.want, sent[len(sent)-1])
		})
	}
}

func TestBot_FileURLFailure(t *testing.T) {
	tg := new(botApiMock)
	tg.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)
	tg.On("GetFileDirectURL", "p").Return("", errors.New("file is too big"))
	pricer := &pricerMock{}
	b := newTestBot(t, tg, pricer)

	b.handleUpdateSync(context.Background(), photoUpdate(adminID, "p", "", ""))

	require.Len(t, tg.sentTexts(), 1)
	assert.Contains(t, tg.sentTexts()[0], "file is too big")
	pricer.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestBot_AlbumIsPricedOnce(t *testing.T) {
	tg := newTestTg()
	for _, id := range []string{"a", "b", "c"} {
		tg.On("GetFileDirectURL", id).Return("https://files.example/"+id, nil)
	}
	pricer := &pricerMock{}
	pricer.On("Run", mock.Anything, pipeline.Request{
		ImageURLs: []string{"https://files.example/a", "https://files.example/b", "https://files.example/c"},
		TitleHint: "desk lamp",
	}).Return(mediumRecommendation(), nil).Once()
	b := newTestBot(t, tg, pricer)
	ctx := context.Background()

	b.handleUpdateSync(ctx, photoUpdate(adminID, "a", "desk lamp", "album-1"))
	b.handleUpdateSync(ctx, photoUpdate(adminID, "b", "", "album-1"))
	b.handleUpdateSync(ctx, photoUpdate(adminID, "c", "", "album-1"))
	pricer.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)

	session := b.state.getUserSession(adminID)
	buffer := session.albumBuffer
	require.NotNil(t, buffer)
	buffer.Timer.Stop()
	session.SendSync(SessionMessage{Type: "album_timeout", Ctx: ctx, AlbumBuffer: buffer})

	pricer.AssertExpectations(t)

	// a stale timeout is ignored
	session.SendSync(SessionMessage{Type: "album_timeout", Ctx: ctx, AlbumBuffer: buffer})
	pricer.AssertNumberOfCalls(t, "Run", 1)
}

func TestBot_AlbumKeepsMaxPhotos(t *testing.T) {
	tg := withFileURLs(newTestTg())
	pricer := &pricerMock{}
	pricer.On("Run", mock.Anything, mock.MatchedBy(func(r pipeline.Request) bool {
		return len(r.ImageURLs) == MaxPhotos
	})).Return(mediumRecommendation(), nil).Once()
	b := newTestBot(t, tg, pricer)
	ctx := context.Background()

	for i := 0; i < MaxPhotos+2; i++ {
		b.handleUpdateSync(ctx, photoUpdate(adminID, "p", "", "album-1"))
	}
	session := b.state.getUserSession(adminID)
	buffer := session.albumBuffer
	buffer.Timer.Stop()
	assert.Equal(t, 2, buffer.Dropped)

	session.SendSync(SessionMessage{Type: "album_timeout", Ctx: ctx, AlbumBuffer: buffer})

	assert.Contains(t, tg.sentTexts(), "Only the first 6 photos are used.")
	pricer.AssertExpectations(t)
}

func TestBot_NewAlbumFlushesPrevious(t *testing.T) {
	tg := withFileURLs(newTestTg())
	pricer := &pricerMock{}
	pricer.On("Run", mock.Anything, mock.Anything).Return(mediumRecommendation(), nil)
	b := newTestBot(t, tg, pricer)
	ctx := context.Background()

	b.handleUpdateSync(ctx, photoUpdate(adminID, "a", "", "album-1"))
	b.handleUpdateSync(ctx, photoUpdate(adminID, "b", "", "album-2"))

	pricer.AssertNumberOfCalls(t, "Run", 1)
	session := b.state.getUserSession(adminID)
	require.NotNil(t, session.albumBuffer)
	assert.Equal(t, "album-2", session.albumBuffer.MediaGroupID)
	session.albumBuffer.Timer.Stop()
}

func TestBot_AdminUsers(t *testing.T) {
	tg := newTestTg()
	b := newTestBot(t, tg, &pricerMock{})
	ctx := context.Background()

	b.handleUpdateSync(ctx, textUpdate(adminID, "/admin users add 42"))
	b.handleUpdateSync(ctx, textUpdate(adminID, "/admin users list"))

	// the new user is now served
	b.handleUpdateSync(ctx, textUpdate(42, "hello"))

	b.handleUpdateSync(ctx, textUpdate(adminID, "/admin users remove 42"))
	b.handleUpdateSync(ctx, textUpdate(adminID, "/admin users add abc"))
	b.handleUpdateSync(ctx, textUpdate(adminID, "/admin"))

	sent := tg.sentTexts()
	require.Len(t, sent, 6)
	assert.Equal(t, "✅ User `42` added.", sent[0])
	assert.True(t, strings.HasPrefix(sent[1], MsgAdminAllowedUsers))
	assert.Contains(t, sent[1], "`42`")
	assert.Equal(t, MsgSendPhoto, sent[2])
	assert.Equal(t, "🗑 User `42` removed.", sent[3])
	assert.Equal(t, MsgAdminUserInvalidID, sent[4])
	assert.Equal(t, MsgAdminUsage, sent[5])

	allowed, err := b.users.IsUserAllowed(42)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestBot_AdminCommandIgnoredForOthers(t *testing.T) {
	tg := newTestTg()
	b := newTestBot(t, tg, &pricerMock{})
	require.NoError(t, b.users.AddAllowedUser(42, adminID))

	b.handleUpdateSync(context.Background(), textUpdate(42, "/admin users add 43"))

	assert.Empty(t, tg.sentTexts())
	allowed, err := b.users.IsUserAllowed(43)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestFormatRecommendation_LowConfidence(t *testing.T) {
	text := formatRecommendation(&pricing.Recommendation{
		Currency:   "USD",
		Confidence: pricing.ConfidenceLow,
		Rationale:  pricing.RationaleInsufficientComps,
		CompsSample: []pricing.CompSample{
			{Title: "lamp_one", Price: 5, Currency: "USD", URL: "https://www.ebay.com/itm/9"},
		},
	})
	assert.Contains(t, text, "Found 1 comparable listing, not enough")
	assert.Contains(t, text, `lamp\_one`)
	assert.NotContains(t, text, "Suggested price")
}

func TestParseCommand(t *testing.T) {
	cmd, args := parseCommand("/admin@PricerBot users  add 5")
	assert.Equal(t, "/admin", cmd)
	assert.Equal(t, []string{"users", "add", "5"}, args)

	cmd, args = parseCommand("")
	assert.Equal(t, "", cmd)
	assert.Empty(t, args)
}
