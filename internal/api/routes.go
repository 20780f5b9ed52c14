package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/RMahshie/tabeq/internal/api/handlers"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(api huma.API, eq *handlers.EqualizerHandler, presets *handlers.PresetHandler) {
	// Equalizer routes
	huma.Register(api, huma.Operation{
		OperationID: "getBands",
		Method:      http.MethodGet,
		Path:        "/api/bands",
		Summary:     "Get band layout",
		Description: "Returns the equalizer bands and the gain limit",
		Tags:        []string{"Equalizer"},
	}, eq.GetBands)

	huma.Register(api, huma.Operation{
		OperationID: "getSettings",
		Method:      http.MethodGet,
		Path:        "/api/settings",
		Summary:     "Get settings",
		Description: "Returns the persisted gains and enabled flag",
		Tags:        []string{"Equalizer"},
	}, eq.GetSettings)

	huma.Register(api, huma.Operation{
		OperationID: "applySettings",
		Method:      http.MethodPost,
		Path:        "/api/settings/apply",
		Summary:     "Apply settings",
		Description: "Persists settings and applies them to the requested or focused tab",
		Tags:        []string{"Equalizer"},
	}, eq.ApplySettings)

	huma.Register(api, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Summary:     "Get session",
		Description: "Returns the current capture session",
		Tags:        []string{"Equalizer"},
	}, eq.GetSession)

	// Tab routes
	huma.Register(api, huma.Operation{
		OperationID: "listTabs",
		Method:      http.MethodGet,
		Path:        "/api/tabs",
		Summary:     "List tabs",
		Description: "Returns the browser tabs and which one is captured",
		Tags:        []string{"Tabs"},
	}, eq.ListTabs)

	huma.Register(api, huma.Operation{
		OperationID: "tabEvent",
		Method:      http.MethodPost,
		Path:        "/api/tabs/{id}/events",
		Summary:     "Report tab event",
		Description: "Reports a tab closing, navigating or losing focus",
		Tags:        []string{"Tabs"},
	}, eq.TabEvent)

	// Preset routes
	huma.Register(api, huma.Operation{
		OperationID: "listPresets",
		Method:      http.MethodGet,
		Path:        "/api/presets",
		Summary:     "List presets",
		Tags:        []string{"Presets"},
	}, presets.ListPresets)

	huma.Register(api, huma.Operation{
		OperationID: "getPreset",
		Method:      http.MethodGet,
		Path:        "/api/presets/{name}",
		Summary:     "Get preset",
		Tags:        []string{"Presets"},
	}, presets.GetPreset)

	huma.Register(api, huma.Operation{
		OperationID: "savePreset",
		Method:      http.MethodPut,
		Path:        "/api/presets/{name}",
		Summary:     "Save preset",
		Description: "Creates a preset or replaces the gains of an existing one",
		Tags:        []string{"Presets"},
	}, presets.SavePreset)

	huma.Register(api, huma.Operation{
		OperationID: "deletePreset",
		Method:      http.MethodDelete,
		Path:        "/api/presets/{name}",
		Summary:     "Delete preset",
		Tags:        []string{"Presets"},
	}, presets.DeletePreset)

	huma.Register(api, huma.Operation{
		OperationID: "applyPreset",
		Method:      http.MethodPost,
		Path:        "/api/presets/{name}/apply",
		Summary:     "Apply preset",
		Description: "Loads the preset into the settings and applies them",
		Tags:        []string{"Presets"},
	}, presets.ApplyPreset)

	huma.Register(api, huma.Operation{
		OperationID: "exportPresets",
		Method:      http.MethodPost,
		Path:        "/api/presets/export",
		Summary:     "Export presets",
		Description: "Archives all presets and returns a download URL",
		Tags:        []string{"Presets"},
	}, presets.ExportPresets)

	huma.Register(api, huma.Operation{
		OperationID: "importPresets",
		Method:      http.MethodPost,
		Path:        "/api/presets/import",
		Summary:     "Import presets",
		Description: "Restores presets from an archived bundle",
		Tags:        []string{"Presets"},
	}, presets.ImportPresets)
}
