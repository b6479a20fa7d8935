package event

import (
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case AssetCached:
		h.logger.Info("asset cached",
			zap.String("sound_id", e.SoundID),
			zap.String("url", e.URL),
			zap.String("size", humanize.IBytes(uint64(e.Size))),
			zap.Duration("duration", e.Duration),
		)
	case AdmissionRefused:
		h.logger.Warn("cache admission refused",
			zap.String("sound_id", e.SoundID),
			zap.String("size", humanize.IBytes(uint64(e.Size))),
			zap.String("current", humanize.IBytes(uint64(e.CurrentSize))),
			zap.String("max", humanize.IBytes(uint64(e.MaxSize))),
		)
	case AssetFetchFailed:
		h.logger.Warn("asset fetch failed",
			zap.String("sound_id", e.SoundID),
			zap.String("url", e.URL),
			zap.String("error", e.Error),
		)
	case AssetRemoved:
		h.logger.Info("asset removed",
			zap.String("sound_id", e.SoundID),
			zap.Int64("size", e.Size),
			zap.String("reason", e.Reason),
		)
	case CacheCleared:
		h.logger.Info("cache cleared",
			zap.String("freed", humanize.IBytes(uint64(e.FreedBytes))),
		)
	case SoundLoaded:
		h.logger.Debug("sound loaded",
			zap.String("sound_id", e.SoundID),
			zap.Bool("from_cache", e.FromCache),
		)
	case SoundUnloaded:
		h.logger.Debug("sound unloaded",
			zap.String("sound_id", e.SoundID),
			zap.String("reason", e.Reason),
		)
	case ConnectivityChanged:
		h.logger.Info("connectivity changed",
			zap.Bool("online", e.Online),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"} // Handle all events
}
