package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/splice/internal/edit"
	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/timeline"
	"github.com/kikiluvv/splice/pkg/util"
)

var (
	toolName string

	trackName   string
	trackKind   string
	trackUnmute bool

	clipIn          string
	clipOut         string
	clipAt          string
	clipTrack       string
	clipEdge        string
	fadeIn          string
	fadeOut         string
	rippleCloseGap  bool
	rippleAllTracks bool
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Track commands",
}

var trackAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a track below the existing ones",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		op := &edit.AddTrack{Kind: timeline.Kind(trackKind), Label: trackName}
		if err := applyAndSave(cmd.Context(), edit.ToolSelect, op); err != nil {
			return err
		}
		fmt.Println(op.NewID)
		return nil
	},
}

var trackRemoveCmd = &cobra.Command{
	Use:   "remove [track id]",
	Short: "Remove a track and its clips",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyAndSave(cmd.Context(), edit.ToolSelect, &edit.RemoveTrack{TrackID: args[0]})
	},
}

var trackMuteCmd = &cobra.Command{
	Use:   "mute [track id]",
	Short: "Mute (or with --off, unmute) a track",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyAndSave(cmd.Context(), edit.ToolSelect, &edit.SetTrackMuted{TrackID: args[0], Muted: !trackUnmute})
	},
}

var clipCmd = &cobra.Command{
	Use:   "clip",
	Short: "Clip editing commands",
}

var clipAddCmd = &cobra.Command{
	Use:   "add [track id] [asset id or media path]",
	Short: "Place a clip on a track; omit the asset for a black/silence placeholder",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := openProjectWorkspace(ctx)
		if err != nil {
			return err
		}
		defer w.Close()

		op := &edit.InsertClip{TrackID: args[0]}
		if op.SourceIn, err = optionalTime(clipIn, 0); err != nil {
			return err
		}
		if op.Start, err = optionalTime(clipAt, 0); err != nil {
			return err
		}

		fallback := time.Duration(0)
		if len(args) == 2 {
			asset, err := w.resolveAsset(ctx, args[1])
			if err != nil {
				return err
			}
			op.AssetID = asset.ID
			fallback = asset.Duration
			if asset.Kind == media.KindImage {
				fallback = op.SourceIn + w.cfg.Project.StillDuration
			}
		}
		if op.SourceOut, err = optionalTime(clipOut, fallback); err != nil {
			return err
		}
		if op.SourceOut == 0 {
			return fmt.Errorf("--out is required for placeholders")
		}

		if err := w.session.ApplyOperation(op); err != nil {
			return fmt.Errorf("%s rejected: %w", op.Name(), err)
		}
		if err := w.save(); err != nil {
			return err
		}
		fmt.Println(op.NewID)
		return nil
	},
}

var clipSplitCmd = &cobra.Command{
	Use:   "split [track id] [time]",
	Short: "Blade the clip under time into two",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := util.ParseTimestamp(args[1])
		if err != nil {
			return err
		}
		op := &edit.Split{TrackID: args[0], At: at}
		if err := applyAndSave(cmd.Context(), edit.ToolBlade, op); err != nil {
			return err
		}
		fmt.Println(op.NewID)
		return nil
	},
}

var clipJoinCmd = &cobra.Command{
	Use:   "join [track id] [time]",
	Short: "Merge the two clips meeting at time back into one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := util.ParseTimestamp(args[1])
		if err != nil {
			return err
		}
		return applyAndSave(cmd.Context(), edit.ToolSelect, &edit.Join{TrackID: args[0], At: at})
	},
}

var clipRippleCmd = &cobra.Command{
	Use:   "ripple-delete [clip id]",
	Short: "Delete a clip and pull later clips earlier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyAndSave(cmd.Context(), edit.ToolSelect, &edit.RippleDelete{
			ClipID:    args[0],
			CloseGap:  rippleCloseGap,
			AllTracks: rippleAllTracks,
		})
	},
}

var clipRippleRangeCmd = &cobra.Command{
	Use:   "ripple-range [track id] [start] [end]",
	Short: "Delete a time range from a track and close it",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := util.ParseTimestamp(args[1])
		if err != nil {
			return err
		}
		end, err := util.ParseTimestamp(args[2])
		if err != nil {
			return err
		}
		return applyAndSave(cmd.Context(), edit.ToolSelect, &edit.RippleDeleteRange{
			TrackID:   args[0],
			Range:     timeline.Range{Start: start, End: end},
			AllTracks: rippleAllTracks,
		})
	},
}

var clipLiftCmd = &cobra.Command{
	Use:   "lift [clip id]",
	Short: "Remove a clip leaving a gap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyAndSave(cmd.Context(), edit.ToolSelect, &edit.Lift{ClipID: args[0]})
	},
}

var clipTrimCmd = &cobra.Command{
	Use:   "trim [clip id] [time]",
	Short: "Move the start or end edge of a clip to time",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := util.ParseTimestamp(args[1])
		if err != nil {
			return err
		}
		var e edit.Edge
		switch clipEdge {
		case "start", "in":
			e = edit.EdgeStart
		case "end", "out":
			e = edit.EdgeEnd
		default:
			return fmt.Errorf("unknown edge %q (start or end)", clipEdge)
		}
		return applyAndSave(cmd.Context(), edit.ToolSelect, &edit.Trim{ClipID: args[0], Edge: e, To: to})
	},
}

var clipMoveCmd = &cobra.Command{
	Use:   "move [clip id] [start]",
	Short: "Move a clip to a new start, optionally onto another track",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := util.ParseTimestamp(args[1])
		if err != nil {
			return err
		}
		tool, err := edit.ParseToolMode(toolName)
		if err != nil {
			return err
		}
		return applyAndSave(cmd.Context(), tool, &edit.Move{ClipID: args[0], TrackID: clipTrack, Start: start})
	},
}

var clipFadeCmd = &cobra.Command{
	Use:   "fade [clip id]",
	Short: "Set the fade-in and fade-out of a clip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := optionalTime(fadeIn, 0)
		if err != nil {
			return err
		}
		out, err := optionalTime(fadeOut, 0)
		if err != nil {
			return err
		}
		return applyAndSave(cmd.Context(), edit.ToolSelect, &edit.SetFade{ClipID: args[0], FadeIn: in, FadeOut: out})
	},
}

func clipToggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [clip id]",
		Short: fmt.Sprintf("Mark a clip as %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Debug().Str("clip", args[0]).Bool("enabled", enabled).Msg("toggling clip")
			return applyAndSave(cmd.Context(), edit.ToolSelect, &edit.SetClipEnabled{ClipID: args[0], Enabled: enabled})
		},
	}
}

func optionalTime(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return util.ParseTimestamp(s)
}

func init() {
	trackAddCmd.Flags().StringVar(&trackKind, "kind", "video", "track kind (video or audio)")
	trackAddCmd.Flags().StringVar(&trackName, "name", "", "track label")
	trackMuteCmd.Flags().BoolVar(&trackUnmute, "off", false, "unmute instead")
	trackCmd.AddCommand(trackAddCmd, trackRemoveCmd, trackMuteCmd)

	clipAddCmd.Flags().StringVar(&clipIn, "in", "", "source in-point (default 0)")
	clipAddCmd.Flags().StringVar(&clipOut, "out", "", "source out-point (default end of asset)")
	clipAddCmd.Flags().StringVar(&clipAt, "at", "", "timeline start (default 0)")
	clipRippleCmd.Flags().BoolVar(&rippleCloseGap, "close-gap", false, "also close the gap after the clip")
	clipRippleCmd.Flags().BoolVar(&rippleAllTracks, "all-tracks", false, "shift every track in lockstep")
	clipRippleRangeCmd.Flags().BoolVar(&rippleAllTracks, "all-tracks", false, "shift every track in lockstep")
	clipTrimCmd.Flags().StringVar(&clipEdge, "edge", "end", "edge to move (start or end)")
	clipMoveCmd.Flags().StringVar(&clipTrack, "track", "", "destination track (default the clip's own)")
	clipMoveCmd.Flags().StringVar(&toolName, "tool", "select", "active tool (select or blade)")
	clipFadeCmd.Flags().StringVar(&fadeIn, "in", "", "fade-in duration")
	clipFadeCmd.Flags().StringVar(&fadeOut, "out", "", "fade-out duration")

	clipCmd.AddCommand(
		clipAddCmd,
		clipSplitCmd,
		clipJoinCmd,
		clipRippleCmd,
		clipRippleRangeCmd,
		clipLiftCmd,
		clipTrimCmd,
		clipMoveCmd,
		clipFadeCmd,
		clipToggleCmd("enable", true),
		clipToggleCmd("disable", false),
	)
}
