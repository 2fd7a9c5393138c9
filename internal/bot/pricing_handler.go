package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/resale-pricer/internal/pipeline"
	"github.com/raine/resale-pricer/internal/pricing"
	"github.com/rs/zerolog/log"
)

const (
	// MaxPhotos is how many photos of one item are priced together.
	MaxPhotos          = pipeline.MaxImages
	albumBufferTimeout = 1500 * time.Millisecond
)

// Pricer runs the pricing pipeline.
type Pricer interface {
	Run(ctx context.Context, req pipeline.Request) (*pricing.Recommendation, error)
}

// PricingHandler turns photos into price suggestions.
type PricingHandler struct {
	tg     BotAPI
	pricer Pricer
}

func NewPricingHandler(tg BotAPI, pricer Pricer) *PricingHandler {
	return &PricingHandler{tg: tg, pricer: pricer}
}

// HandlePhoto prices a single photo right away and buffers album photos
// until the album is complete.
func (h *PricingHandler) HandlePhoto(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	// Get the largest photo size
	largest := message.Photo[len(message.Photo)-1]
	photo := AlbumPhoto{FileID: largest.FileID, Caption: message.Caption}

	if message.MediaGroupID == "" {
		h.price(ctx, session, []AlbumPhoto{photo}, message.Caption)
		return
	}

	BufferAlbumPhoto(ctx, photo, message.MediaGroupID, h.albumConfig(session))
}

// ProcessAlbumTimeout handles the album timeout message from the worker channel.
func (h *PricingHandler) ProcessAlbumTimeout(ctx context.Context, session *UserSession, albumBuffer *AlbumBuffer) {
	buffer := ProcessAlbumBufferTimeout(albumBuffer, h.albumConfig(session))
	if buffer == nil {
		return
	}
	h.priceAlbum(ctx, session, buffer)
}

func (h *PricingHandler) albumConfig(session *UserSession) AlbumBufferConfig {
	return AlbumBufferConfig{
		GetBuffer: func() *AlbumBuffer { return session.albumBuffer },
		SetBuffer: func(b *AlbumBuffer) { session.albumBuffer = b },
		OnFlush: func(ctx context.Context, buffer *AlbumBuffer) {
			h.priceAlbum(ctx, session, buffer)
		},
		OnTimeout: func(buffer *AlbumBuffer) {
			// Use context.Background() since the original request context may be cancelled by now
			session.Send(SessionMessage{
				Type:        "album_timeout",
				Ctx:         context.Background(),
				AlbumBuffer: buffer,
			})
		},
		Timeout:   albumBufferTimeout,
		MaxPhotos: MaxPhotos,
	}
}

func (h *PricingHandler) priceAlbum(ctx context.Context, session *UserSession, buffer *AlbumBuffer) {
	if buffer.Dropped > 0 {
		session.reply(MsgTooManyPhotos, MaxPhotos)
	}
	h.price(ctx, session, buffer.Photos, buffer.Caption())
}

func (h *PricingHandler) price(ctx context.Context, session *UserSession, photos []AlbumPhoto, caption string) {
	imageURLs := make([]string, 0, len(photos))
	for _, p := range photos {
		url, err := h.tg.GetFileDirectURL(p.FileID)
		if err != nil {
			session.replyWithError(fmt.Errorf("failed to get photo: %w", err))
			return
		}
		imageURLs = append(imageURLs, url)
	}

	session.reply(MsgPricing)

	typingCtx, stopTyping := context.WithCancel(ctx)
	go session.startTypingLoop(typingCtx)
	rec, err := h.pricer.Run(ctx, pipeline.Request{
		ImageURLs: imageURLs,
		TitleHint: strings.TrimSpace(caption),
	})
	stopTyping()

	if err != nil {
		h.replyWithPricingError(session, err)
		return
	}
	session._reply(formatRecommendation(rec), true)
}

func (h *PricingHandler) replyWithPricingError(session *UserSession, err error) {
	var (
		cfgErr *pipeline.ConfigurationError
		extErr *pipeline.ExtractionError
		retErr *pipeline.RetrievalError
	)
	switch {
	case errors.As(err, &cfgErr):
		log.Error().Err(err).Int64("userId", session.userId).Msg("pricing not configured")
		session.reply(MsgPricingUnavailable)
	case errors.As(err, &extErr):
		log.Warn().Err(err).Int64("userId", session.userId).Msg("extraction failed")
		session.reply(MsgExtractionFailed)
	case errors.As(err, &retErr):
		log.Warn().Err(err).Int64("userId", session.userId).Msg("comp retrieval failed")
		session.reply(MsgRetrievalFailed)
	default:
		session.replyWithError(err)
	}
}

// Square brackets would end the Markdown link text early.
var linkTextReplacer = strings.NewReplacer("[", "(", "]", ")")

func formatRecommendation(rec *pricing.Recommendation) string {
	var sb strings.Builder
	if rec.SuggestedPrice != nil {
		sb.WriteString(fmt.Sprintf(MsgSuggestedPrice,
			formatMoney(*rec.SuggestedPrice, rec.Currency),
			formatMoney(*rec.Low, rec.Currency),
			formatMoney(*rec.High, rec.Currency),
			rec.Confidence,
		))
	} else {
		sb.WriteString(fmt.Sprintf(MsgNotEnoughComps,
			rec.Confidence,
			pluralize("comparable listing", "comparable listings", len(rec.CompsSample)),
		))
	}
	sb.WriteString("\n\n")
	sb.WriteString(escapeMarkdown(rec.Rationale))

	if len(rec.CompsSample) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(MsgComparableListings)
		for i, c := range rec.CompsSample {
			sb.WriteString("\n")
			sb.WriteString(fmt.Sprintf(MsgComparableListingRow,
				i+1,
				escapeMarkdown(linkTextReplacer.Replace(c.Title)),
				c.URL,
				formatMoney(c.Price, c.Currency),
			))
		}
	}
	return sb.String()
}
