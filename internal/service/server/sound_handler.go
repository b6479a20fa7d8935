package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ambientflow/ambientmix/internal/domain"
)

// SoundHandler handles sound and mixer requests
type SoundHandler struct {
	catalog *domain.Catalog
	mixer   Mixer
	cache   Cache
	logger  *zap.Logger
}

// NewSoundHandler creates a new SoundHandler
func NewSoundHandler(catalog *domain.Catalog, mixer Mixer, cache Cache, logger *zap.Logger) *SoundHandler {
	return &SoundHandler{
		catalog: catalog,
		mixer:   mixer,
		cache:   cache,
		logger:  logger,
	}
}

// SoundState is the API view of one catalog sound
type SoundState struct {
	ID            string          `json:"id"`
	Name          string          `json:"name,omitempty"`
	Category      domain.Category `json:"category,omitempty"`
	Priority      string          `json:"priority"`
	DefaultVolume int             `json:"default_volume"`
	Loaded        bool            `json:"loaded"`
	Playing       bool            `json:"playing"`
	Volume        int             `json:"volume"`
}

func (h *SoundHandler) state(s domain.Sound) SoundState {
	return SoundState{
		ID:            s.ID,
		Name:          s.Name,
		Category:      s.Category,
		Priority:      h.cache.Priority(s.ID).String(),
		DefaultVolume: s.DefaultVolume,
		Loaded:        h.mixer.IsLoaded(s.ID),
		Playing:       h.mixer.IsPlaying(s.ID),
		Volume:        h.mixer.GetVolume(s.ID),
	}
}

// sound resolves the {id} path value, writing a 404 for unknown ids
func (h *SoundHandler) sound(w http.ResponseWriter, r *http.Request) (domain.Sound, bool) {
	id := r.PathValue("id")
	s, ok := h.catalog.Lookup(id)
	if !ok {
		http.Error(w, "Unknown sound", http.StatusNotFound)
		return domain.Sound{}, false
	}
	return s, true
}

// HandleList lists the catalog with live playback state
func (h *SoundHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sounds := h.catalog.Sounds()
	states := make([]SoundState, 0, len(sounds))
	for _, s := range sounds {
		states = append(states, h.state(s))
	}
	writeJSON(w, http.StatusOK, states)
}

// HandleLoad loads a sound without playing it
func (h *SoundHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sound(w, r)
	if !ok {
		return
	}
	if !h.mixer.LoadOnDemand(r.Context(), s.ID) {
		http.Error(w, "Sound could not be loaded", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, h.state(s))
}

// HandlePlay loads the sound if needed and starts it
func (h *SoundHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sound(w, r)
	if !ok {
		return
	}
	if !h.mixer.LoadOnDemand(r.Context(), s.ID) {
		http.Error(w, "Sound could not be loaded", http.StatusBadGateway)
		return
	}
	h.mixer.Play(s.ID)
	writeJSON(w, http.StatusOK, h.state(s))
}

// HandleStop stops a sound
func (h *SoundHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sound(w, r)
	if !ok {
		return
	}
	h.mixer.Stop(s.ID)
	writeJSON(w, http.StatusOK, h.state(s))
}

// HandleFadeIn fades a sound in, loading it first if needed
func (h *SoundHandler) HandleFadeIn(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sound(w, r)
	if !ok {
		return
	}
	d, ok := fadeDuration(w, r)
	if !ok {
		return
	}
	if !h.mixer.LoadOnDemand(r.Context(), s.ID) {
		http.Error(w, "Sound could not be loaded", http.StatusBadGateway)
		return
	}
	h.mixer.FadeIn(s.ID, d)
	writeJSON(w, http.StatusOK, h.state(s))
}

// HandleFadeOut fades a sound out and stops it
func (h *SoundHandler) HandleFadeOut(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sound(w, r)
	if !ok {
		return
	}
	d, ok := fadeDuration(w, r)
	if !ok {
		return
	}
	h.mixer.FadeOut(s.ID, d)
	writeJSON(w, http.StatusAccepted, h.state(s))
}

// HandleUnload releases a sound's playback resources
func (h *SoundHandler) HandleUnload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sound(w, r)
	if !ok {
		return
	}
	h.mixer.Unload(s.ID)
	writeJSON(w, http.StatusOK, h.state(s))
}

type volumeRequest struct {
	Volume *int `json:"volume"`
}

// HandleVolume sets a sound's volume; values are clamped to [0, 100]
func (h *SoundHandler) HandleVolume(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sound(w, r)
	if !ok {
		return
	}

	var req volumeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil || req.Volume == nil {
		http.Error(w, "Body must be {\"volume\": <int>}", http.StatusBadRequest)
		return
	}
	h.mixer.SetVolume(s.ID, *req.Volume)
	writeJSON(w, http.StatusOK, h.state(s))
}

// HandleStopAll stops every playing sound
func (h *SoundHandler) HandleStopAll(w http.ResponseWriter, r *http.Request) {
	h.mixer.StopAll()
	writeJSON(w, http.StatusOK, map[string]interface{}{"playing": h.mixer.GetPlayingSounds()})
}

// HandleUnloadUnused reclaims idle sounds; smart=true keeps medium and high
// priority sounds loaded
func (h *SoundHandler) HandleUnloadUnused(w http.ResponseWriter, r *http.Request) {
	smart := false
	if v := r.URL.Query().Get("smart"); v != "" {
		var err error
		if smart, err = strconv.ParseBool(v); err != nil {
			http.Error(w, "Invalid smart flag", http.StatusBadRequest)
			return
		}
	}

	var n int
	if smart {
		n = h.mixer.SmartUnloadUnused()
	} else {
		n = h.mixer.UnloadUnused()
	}
	h.logger.Debug("Unload unused requested", zap.Bool("smart", smart), zap.Int("unloaded", n))
	writeJSON(w, http.StatusOK, map[string]interface{}{"unloaded": n, "smart": smart})
}

// HandlePlaying lists playing and loaded sounds
func (h *SoundHandler) HandlePlaying(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"playing": h.mixer.GetPlayingSounds(),
		"loaded":  h.mixer.LoadedSounds(),
	})
}

// HandleMemory reports playback memory usage
func (h *SoundHandler) HandleMemory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mixer.GetMemoryUsage())
}

// fadeDuration parses ?duration_ms=, returning 0 for the default
func fadeDuration(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	v := r.URL.Query().Get("duration_ms")
	if v == "" {
		return 0, true
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		http.Error(w, "Invalid duration_ms", http.StatusBadRequest)
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
