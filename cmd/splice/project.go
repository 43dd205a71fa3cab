package main

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/splice/internal/config"
	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/session"
	"github.com/kikiluvv/splice/pkg/util"
)

var newCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create an empty project file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		name := cfg.Project.DefaultName
		if len(args) == 1 {
			name = args[0]
		}

		w := openWorkspace(cmd.Context())
		defer w.Close()

		if err := w.session.NewProject(name); err != nil {
			return err
		}
		if err := w.save(); err != nil {
			return err
		}

		log.Info().Str("project", name).Str("path", projectPath).Msg("project created")
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [media files...]",
	Short: "Probe media files and add them to the project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openProjectWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer w.Close()

		var imported []*media.Asset
		for _, path := range args {
			asset, err := w.importPath(cmd.Context(), path)
			if err != nil {
				return err
			}
			imported = append(imported, asset)
		}
		if err := w.save(); err != nil {
			return err
		}

		fmt.Println(assetTable(imported))
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the project's assets, tracks and clips",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openProjectWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer w.Close()

		st, err := w.session.ProjectState()
		if err != nil {
			return err
		}
		printState(st)
		return nil
	},
}

func printState(st session.State) {
	fmt.Printf("%s  %dx%d @ %s fps  %d Hz x%d  length %s  playhead %s\n",
		st.Name,
		st.Settings.Width, st.Settings.Height,
		strconv.FormatFloat(st.Settings.FrameRate, 'f', -1, 64),
		st.Settings.SampleRate, st.Settings.Channels,
		util.FormatDuration(st.Timeline.TotalDuration()),
		util.FormatDuration(st.Playhead),
	)
	if len(st.Assets) > 0 {
		fmt.Println(assetTable(st.Assets))
	}

	names := make(map[string]string, len(st.Assets))
	for _, a := range st.Assets {
		names[a.ID] = a.Name
	}

	for i, tr := range st.Timeline.Tracks() {
		title := fmt.Sprintf("#%d %s %s (%s)", i, tr.Kind, tr.Name, tr.ID)
		if tr.Muted {
			title += " muted"
		}
		var rows [][]string
		for _, c := range tr.Clips() {
			source := names[c.AssetID]
			if c.IsPlaceholder() {
				source = "(black/silence)"
			}
			flags := ""
			if c.Disabled {
				flags = "disabled"
			}
			rows = append(rows, []string{
				c.ID,
				source,
				util.FormatDuration(c.Start),
				util.FormatDuration(c.End()),
				util.FormatDuration(c.SourceIn),
				util.FormatDuration(c.SourceOut),
				util.FormatDuration(c.FadeIn),
				util.FormatDuration(c.FadeOut),
				flags,
			})
		}
		fmt.Println(renderTable(title,
			[]string{"Clip", "Source", "Start", "End", "In", "Out", "Fade in", "Fade out", ""},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
		))
	}
}

func assetTable(assets []*media.Asset) string {
	rows := make([][]string, 0, len(assets))
	for _, a := range assets {
		format := ""
		if a.Kind.HasPicture() {
			format = fmt.Sprintf("%dx%d", a.Width, a.Height)
		}
		if a.HasAudio() {
			if format != "" {
				format += " "
			}
			format += fmt.Sprintf("%dHz/%dch", a.SampleRate, a.Channels)
		}
		rows = append(rows, []string{a.ID, string(a.Kind), a.Name, util.FormatDuration(a.Duration), format})
	}
	return renderTable("Assets",
		[]string{"ID", "Kind", "Name", "Duration", "Format"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
