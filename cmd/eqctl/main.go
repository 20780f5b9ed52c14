package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/RMahshie/tabeq/internal/cli"
	"github.com/RMahshie/tabeq/internal/client"
	"github.com/RMahshie/tabeq/internal/ui"
)

var version = "1.0.0"

// Globals are shared by every command
type Globals struct {
	Server  string        `short:"s" env:"EQ_SERVER" default:"http://localhost:8080" help:"Equalizer server URL"`
	Timeout time.Duration `default:"10s" help:"Request timeout"`
}

// CLI defines the command-line interface
type CLI struct {
	Globals

	Version VersionCmd `cmd:"" help:"Show version information"`
	Bands   BandsCmd   `cmd:"" help:"Show the band layout"`
	Status  StatusCmd  `cmd:"" help:"Show settings and the current session"`
	Apply   ApplyCmd   `cmd:"" help:"Apply gains to a tab"`
	Off     OffCmd     `cmd:"" help:"Disable the equalizer"`
	Tabs    TabsCmd    `cmd:"" help:"List browser tabs"`
	Event   EventCmd   `cmd:"" help:"Report a tab lifecycle event"`
	Presets PresetsCmd `cmd:"" help:"Manage presets"`
	TUI     TUICmd     `cmd:"" name:"tui" help:"Interactive sliders"`
}

// TabFlag selects a target tab
type TabFlag struct {
	Tab int `short:"t" help:"Target tab id (default: focused tab)"`
}

func (f TabFlag) ptr() *int {
	if f.Tab <= 0 {
		return nil
	}
	tab := f.Tab
	return &tab
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	cli.PrintVersion(version)
	return nil
}

type BandsCmd struct{}

func (c *BandsCmd) Run(g *Globals, api *client.Client) error {
	ctx, cancel := g.context()
	defer cancel()
	bands, limit, err := api.Bands(ctx)
	if err != nil {
		return err
	}
	for _, b := range bands {
		cli.PrintKV(os.Stdout, b.Label, fmt.Sprintf("%d Hz %s", b.Frequency, b.Filter))
	}
	cli.PrintKV(os.Stdout, "Limit", fmt.Sprintf("±%.1f dB", limit))
	return nil
}

type StatusCmd struct{}

func (c *StatusCmd) Run(g *Globals, api *client.Client) error {
	ctx, cancel := g.context()
	defer cancel()
	settings, err := api.Settings(ctx)
	if err != nil {
		return err
	}
	session, err := api.Session(ctx)
	if err != nil {
		return err
	}
	cli.PrintKV(os.Stdout, "Enabled", settings.Enabled)
	cli.PrintKV(os.Stdout, "Settings", cli.FormatGains(settings.Gains))
	cli.PrintSession(os.Stdout, *session)
	return nil
}

type ApplyCmd struct {
	TabFlag
	Gains string `arg:"" optional:"" help:"Gains as freq=dB pairs, e.g. 32=3,1000=-2"`
}

func (c *ApplyCmd) Run(g *Globals, api *client.Client) error {
	gains, err := cli.ParseGains(c.Gains)
	if err != nil {
		return err
	}
	ctx, cancel := g.context()
	defer cancel()
	res, err := api.Apply(ctx, gains, true, c.ptr())
	if err != nil {
		return err
	}
	cli.PrintApplyResult(os.Stdout, res)
	return nil
}

type OffCmd struct{}

func (c *OffCmd) Run(g *Globals, api *client.Client) error {
	ctx, cancel := g.context()
	defer cancel()
	settings, err := api.Settings(ctx)
	if err != nil {
		return err
	}
	res, err := api.Apply(ctx, settings.Gains, false, nil)
	if err != nil {
		return err
	}
	cli.PrintApplyResult(os.Stdout, res)
	return nil
}

type TabsCmd struct{}

func (c *TabsCmd) Run(g *Globals, api *client.Client) error {
	ctx, cancel := g.context()
	defer cancel()
	tabs, err := api.Tabs(ctx)
	if err != nil {
		return err
	}
	for _, t := range tabs {
		flags := ""
		if t.Active {
			flags += " [focused]"
		}
		if t.Capture {
			flags += " [equalized]"
		}
		cli.PrintKV(os.Stdout, fmt.Sprintf("#%d", t.ID), fmt.Sprintf("%s <%s>%s", t.Title, t.URL, flags))
	}
	return nil
}

type EventCmd struct {
	Tab  int    `arg:"" help:"Tab id"`
	Kind string `arg:"" enum:"closed,navigated,blurred" help:"Event kind (closed, navigated, blurred)"`
}

func (c *EventCmd) Run(g *Globals, api *client.Client) error {
	ctx, cancel := g.context()
	defer cancel()
	session, err := api.TabEvent(ctx, c.Tab, c.Kind)
	if err != nil {
		return err
	}
	cli.PrintSession(os.Stdout, *session)
	return nil
}

type PresetsCmd struct {
	List   PresetListCmd   `cmd:"" default:"1" help:"List presets"`
	Save   PresetSaveCmd   `cmd:"" help:"Save gains as a preset"`
	Delete PresetDeleteCmd `cmd:"" help:"Delete a preset"`
	Apply  PresetApplyCmd  `cmd:"" help:"Apply a preset"`
	Export PresetExportCmd `cmd:"" help:"Export presets to the archive"`
	Import PresetImportCmd `cmd:"" help:"Import presets from the archive"`
}

type PresetListCmd struct{}

func (c *PresetListCmd) Run(g *Globals, api *client.Client) error {
	ctx, cancel := g.context()
	defer cancel()
	presets, err := api.Presets(ctx)
	if err != nil {
		return err
	}
	if len(presets) == 0 {
		fmt.Println(cli.KeyStyle.Render("No presets saved"))
		return nil
	}
	for _, p := range presets {
		cli.PrintKV(os.Stdout, p.Name, cli.FormatGains(p.Gains))
	}
	return nil
}

type PresetSaveCmd struct {
	Name    string `arg:"" help:"Preset name"`
	Gains   string `arg:"" optional:"" help:"Gains as freq=dB pairs"`
	Current bool   `help:"Save the current settings instead of the given gains"`
}

func (c *PresetSaveCmd) Run(g *Globals, api *client.Client) error {
	ctx, cancel := g.context()
	defer cancel()

	var gains map[string]float64
	if c.Current {
		settings, err := api.Settings(ctx)
		if err != nil {
			return err
		}
		gains = settings.Gains
	} else {
		var err error
		if gains, err = cli.ParseGains(c.Gains); err != nil {
			return err
		}
	}

	p, err := api.SavePreset(ctx, c.Name, gains)
	if err != nil {
		return err
	}
	cli.PrintKV(os.Stdout, "Saved", p.Name)
	cli.PrintKV(os.Stdout, "Gains", cli.FormatGains(p.Gains))
	return nil
}

type PresetDeleteCmd struct {
	Name string `arg:"" help:"Preset name"`
}

func (c *PresetDeleteCmd) Run(g *Globals, api *client.Client) error {
	ctx, cancel := g.context()
	defer cancel()
	if err := api.DeletePreset(ctx, c.Name); err != nil {
		return err
	}
	cli.PrintKV(os.Stdout, "Deleted", c.Name)
	return nil
}

type PresetApplyCmd struct {
	TabFlag
	Name string `arg:"" help:"Preset name, or default for flat"`
}

func (c *PresetApplyCmd) Run(g *Globals, api *client.Client) error {
	ctx, cancel := g.context()
	defer cancel()
	res, err := api.ApplyPreset(ctx, c.Name, c.ptr())
	if err != nil {
		return err
	}
	cli.PrintApplyResult(os.Stdout, res)
	return nil
}

type PresetExportCmd struct{}

func (c *PresetExportCmd) Run(g *Globals, api *client.Client) error {
	ctx, cancel := g.context()
	defer cancel()
	key, url, count, err := api.ExportPresets(ctx)
	if err != nil {
		return err
	}
	cli.PrintKV(os.Stdout, "Exported", count)
	cli.PrintKV(os.Stdout, "Key", key)
	cli.PrintKV(os.Stdout, "Download", url)
	return nil
}

type PresetImportCmd struct {
	Key string `arg:"" help:"Archive key of an exported bundle"`
}

func (c *PresetImportCmd) Run(g *Globals, api *client.Client) error {
	ctx, cancel := g.context()
	defer cancel()
	imported, skipped, err := api.ImportPresets(ctx, c.Key)
	if err != nil {
		return err
	}
	cli.PrintKV(os.Stdout, "Imported", len(imported))
	for _, name := range skipped {
		cli.PrintKV(os.Stdout, "Skipped", name)
	}
	return nil
}

type TUICmd struct {
	TabFlag
}

func (c *TUICmd) Run(api *client.Client) error {
	p := tea.NewProgram(ui.NewModel(api, c.ptr()), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (g *Globals) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.Timeout)
}

func main() {
	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("eqctl"),
		kong.Description("Control the tab equalizer"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{
			"version": version,
		},
	)

	api := client.New(cliArgs.Server)
	if err := ctx.Run(&cliArgs.Globals, api); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}
