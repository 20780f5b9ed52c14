package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/tabeq/internal/audio/filterchain"
	"github.com/RMahshie/tabeq/internal/coordinator"
	"github.com/RMahshie/tabeq/internal/host"
	"github.com/RMahshie/tabeq/internal/processing"
	"github.com/RMahshie/tabeq/internal/repository"
	"github.com/RMahshie/tabeq/pkg/models"
)

// SessionController is the coordinator as seen by the API
type SessionController interface {
	ApplySettings(ctx context.Context, tab host.TabID, gains models.GainProfile, enabled bool) error
	HandleTabEvent(ctx context.Context, ev host.TabEvent)
	Status() coordinator.Status
}

// EqualizerHandler handles settings, session and tab requests
type EqualizerHandler struct {
	settings repository.SettingsRepository
	coord    SessionController
	tabs     host.Tabs
	layout   models.BandLayout
	limit    float64
}

// NewEqualizerHandler creates a new equalizer handler
func NewEqualizerHandler(settings repository.SettingsRepository, coord SessionController, tabs host.Tabs, layout models.BandLayout, limit float64) *EqualizerHandler {
	if limit <= 0 {
		limit = models.DefaultGainLimit
	}
	return &EqualizerHandler{
		settings: settings,
		coord:    coord,
		tabs:     tabs,
		layout:   layout,
		limit:    limit,
	}
}

// GetBands returns the band layout
func (h *EqualizerHandler) GetBands(ctx context.Context, _ *struct{}) (*models.GetBandsResponse, error) {
	resp := &models.GetBandsResponse{}
	for i, freq := range h.layout {
		resp.Body.Bands = append(resp.Body.Bands, models.BandInfo{
			Frequency: freq,
			Label:     models.Label(freq),
			Filter:    string(filterchain.TypeFor(i, len(h.layout))),
		})
	}
	resp.Body.GainLimit = h.limit
	return resp, nil
}

// GetSettings returns the persisted settings
func (h *EqualizerHandler) GetSettings(ctx context.Context, _ *struct{}) (*models.GetSettingsResponse, error) {
	settings, err := h.settings.GetSettings(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to load settings", err)
	}
	settings.Gains = settings.Gains.Normalize(h.layout, h.limit)
	return &models.GetSettingsResponse{Body: settings.ToBody()}, nil
}

// ApplySettings persists the settings and routes them to the coordinator for
// the requested or focused tab. Pipeline failures are reported in the body.
func (h *EqualizerHandler) ApplySettings(ctx context.Context, req *models.ApplySettingsRequest) (*models.ApplySettingsResponse, error) {
	gains := models.ParseGainProfile(req.Body.Gains).Normalize(h.layout, h.limit)
	log.Info().Bool("enabled", req.Body.Enabled).Msg("Applying equalizer settings")

	settings := &models.Settings{Gains: gains, Enabled: req.Body.Enabled, UpdatedAt: time.Now()}
	if err := h.settings.SaveSettings(ctx, settings); err != nil {
		return nil, huma.Error500InternalServerError("Failed to save settings", err)
	}
	return h.apply(ctx, gains, req.Body.Enabled, req.Body.TabID), nil
}

// apply sends gains to the coordinator and describes the outcome
func (h *EqualizerHandler) apply(ctx context.Context, gains models.GainProfile, enabled bool, tabID *int) *models.ApplySettingsResponse {
	resp := &models.ApplySettingsResponse{}

	var tab host.TabID
	if tabID != nil {
		tab = host.TabID(*tabID)
	} else if enabled {
		active, err := h.tabs.Active(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("No tab to equalize")
			resp.Body.Error = err.Error()
			resp.Body.Reason = "no_tab"
			resp.Body.Session = h.session()
			return resp
		}
		tab = active
	}

	if err := h.coord.ApplySettings(ctx, tab, gains, enabled); err != nil {
		log.Error().Err(err).Str("tab", tab.String()).Msg("Failed to apply settings")
		resp.Body.Error = err.Error()
		resp.Body.Reason = failureReason(err)
	} else {
		resp.Body.Success = true
	}
	resp.Body.Session = h.session()
	return resp
}

// GetSession returns the coordinator status
func (h *EqualizerHandler) GetSession(ctx context.Context, _ *struct{}) (*models.GetSessionResponse, error) {
	return &models.GetSessionResponse{Body: h.session()}, nil
}

// ListTabs returns the host's tabs
func (h *EqualizerHandler) ListTabs(ctx context.Context, _ *struct{}) (*models.ListTabsResponse, error) {
	tabs, err := h.tabs.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tabs", err)
	}

	st := h.coord.Status()
	resp := &models.ListTabsResponse{}
	resp.Body.Tabs = make([]models.TabBody, 0, len(tabs))
	for _, t := range tabs {
		resp.Body.Tabs = append(resp.Body.Tabs, models.TabBody{
			ID:      int(t.ID),
			Title:   t.Title,
			URL:     t.URL,
			Active:  t.Active,
			Capture: st.Tab != nil && *st.Tab == t.ID,
		})
	}
	return resp, nil
}

// TabEvent forwards an external lifecycle trigger to the coordinator
func (h *EqualizerHandler) TabEvent(ctx context.Context, req *models.TabEventRequest) (*models.TabEventResponse, error) {
	kind, err := host.ParseEventKind(req.Body.Kind)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid tab event", err)
	}
	h.coord.HandleTabEvent(ctx, host.TabEvent{Tab: host.TabID(req.ID), Kind: kind})
	return &models.TabEventResponse{Body: h.session()}, nil
}

func (h *EqualizerHandler) session() models.SessionBody {
	st := h.coord.Status()
	body := models.SessionBody{Phase: st.Phase.String()}
	if st.Tab != nil {
		id := int(*st.Tab)
		body.TabID = &id
	}
	if st.Gains != nil {
		body.Gains = st.Gains.Wire()
	}
	if !st.Since.IsZero() {
		since := st.Since
		body.Since = &since
	}
	return body
}

// failureReason maps pipeline errors onto the response taxonomy. A missing
// tab wins over the stage that tripped on it.
func failureReason(err error) string {
	switch {
	case errors.Is(err, host.ErrNoActiveTab), errors.Is(err, host.ErrUnknownTab):
		return "no_tab"
	case errors.Is(err, coordinator.ErrMuteFailure):
		return "mute"
	case errors.Is(err, processing.ErrCaptureFailure):
		return "capture"
	case errors.Is(err, processing.ErrGraphConstruction):
		return "graph"
	case errors.Is(err, coordinator.ErrStartCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "internal"
	}
}
