package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/anki-bridge/backend"
)

// nodeView is the printed form of a backend.TemplateNode.
type nodeView struct {
	Text    string   `yaml:"text,omitempty"`
	Field   string   `yaml:"field,omitempty"`
	Value   string   `yaml:"value,omitempty"`
	Filters []string `yaml:"filters,omitempty"`
}

// tagView is the printed form of a backend.AVTag.
type tagView struct {
	Sound  string   `yaml:"sound,omitempty"`
	TTS    string   `yaml:"tts,omitempty"`
	Lang   string   `yaml:"lang,omitempty"`
	Voices []string `yaml:"voices,omitempty"`
	Other  []string `yaml:"other_args,omitempty"`
	Speed  float32  `yaml:"speed,omitempty"`
}

type requirementView struct {
	Index int    `yaml:"index"`
	Kind  string `yaml:"kind"`
	Ords  []int  `yaml:"ords,flow"`
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func nodeViews(nodes []backend.TemplateNode) []nodeView {
	views := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		switch n := n.(type) {
		case backend.TemplateText:
			views = append(views, nodeView{Text: string(n)})
		case *backend.TemplateReplacement:
			views = append(views, nodeView{Field: n.FieldName, Value: n.CurrentText, Filters: n.Filters})
		}
	}
	return views
}

func tagViews(tags []backend.AVTag) []tagView {
	views := make([]tagView, 0, len(tags))
	for _, t := range tags {
		switch t := t.(type) {
		case backend.SoundOrVideoTag:
			views = append(views, tagView{Sound: t.Filename})
		case backend.TTSTag:
			views = append(views, tagView{TTS: t.FieldText, Lang: t.Lang, Voices: t.Voices, Other: t.OtherArgs, Speed: t.Speed})
		}
	}
	return views
}

func newRenderCommand(opts *rootOptions) *cobra.Command {
	var (
		fields map[string]string
		ord    int
	)
	cmd := &cobra.Command{
		Use:   "render QFMT AFMT",
		Short: "Render both sides of a card",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd.Context(), func(b *backend.Backend) error {
				q, a, err := b.RenderCard(cmd.Context(), args[0], args[1], fields, ord)
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), map[string][]nodeView{
					"question": nodeViews(q),
					"answer":   nodeViews(a),
				})
			})
		},
	}
	cmd.Flags().StringToStringVarP(&fields, "field", "f", nil, "field value (name=value, repeatable)")
	cmd.Flags().IntVar(&ord, "ord", 0, "card ordinal")
	return cmd
}

func newStripAVCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "strip-av TEXT",
		Short: "Remove audio/video tags from text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd.Context(), func(b *backend.Backend) error {
				text, err := b.StripAVTags(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
}

func newExtractAVCommand(opts *rootOptions) *cobra.Command {
	var answer bool
	cmd := &cobra.Command{
		Use:   "extract-av TEXT",
		Short: "Split audio/video tags out of text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd.Context(), func(b *backend.Backend) error {
				text, tags, err := b.ExtractAVTags(cmd.Context(), args[0], !answer)
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), struct {
					Text string    `yaml:"text"`
					Tags []tagView `yaml:"tags"`
				}{text, tagViews(tags)})
			})
		},
	}
	cmd.Flags().BoolVar(&answer, "answer", false, "text is from the answer side")
	return cmd
}

func newMinutesWestCommand(opts *rootOptions) *cobra.Command {
	var at int64
	cmd := &cobra.Command{
		Use:   "minutes-west",
		Short: "Print the local UTC offset in minutes west",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if at == 0 {
				at = time.Now().Unix()
			}
			return opts.withBackend(cmd.Context(), func(b *backend.Backend) error {
				mins, err := b.LocalMinutesWest(cmd.Context(), at)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), mins)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&at, "at", 0, "unix time (default now)")
	return cmd
}

func newExpandClozesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "expand-clozes TEXT",
		Short: "Expand cloze deletions to reveal LaTeX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd.Context(), func(b *backend.Backend) error {
				text, err := b.ExpandClozesToRevealLatex(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
}

func newTemplateReqsCommand(opts *rootOptions) *cobra.Command {
	var (
		fronts []string
		fields map[string]int
	)
	cmd := &cobra.Command{
		Use:   "template-reqs",
		Short: "Compute which fields each template front needs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd.Context(), func(b *backend.Backend) error {
				reqs, err := b.TemplateRequirements(cmd.Context(), fronts, fields)
				if err != nil {
					return err
				}
				views := make([]requirementView, len(reqs))
				for i, r := range reqs {
					views[i] = requirementView{Index: r.Index, Kind: r.Kind.String(), Ords: r.Ords}
				}
				return printYAML(cmd.OutOrStdout(), views)
			})
		},
	}
	cmd.Flags().StringArrayVar(&fronts, "front", nil, "template front (repeatable)")
	cmd.Flags().StringToIntVar(&fields, "field", nil, "field ordinal (name=ord, repeatable)")
	return cmd
}

func newTimingCommand(opts *rootOptions) *cobra.Command {
	var (
		created, now         int64
		createdWest, nowWest int32
		rollover             int32
	)
	cmd := &cobra.Command{
		Use:   "timing",
		Short: "Compute the scheduler's day boundary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if now == 0 {
				now = time.Now().Unix()
			}
			return opts.withBackend(cmd.Context(), func(b *backend.Backend) error {
				timing, err := b.SchedTimingToday(cmd.Context(), created, createdWest, now, nowWest, rollover)
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), struct {
					DaysElapsed uint32 `yaml:"days_elapsed"`
					NextDayAt   int64  `yaml:"next_day_at"`
				}{timing.DaysElapsed, timing.NextDayAt})
			})
		},
	}
	cmd.Flags().Int64Var(&created, "created", 0, "collection creation time (unix)")
	cmd.Flags().Int32Var(&createdWest, "created-west", 0, "minutes west at creation")
	cmd.Flags().Int64Var(&now, "now", 0, "current time (unix, default now)")
	cmd.Flags().Int32Var(&nowWest, "now-west", 0, "minutes west now")
	cmd.Flags().Int32Var(&rollover, "rollover", 4, "hour the scheduler day starts")
	return cmd
}

func newAddMediaCommand(opts *rootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add-media FILE",
		Short: "Copy a file into the media folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read media file: %w", err)
			}
			if name == "" {
				name = filepath.Base(args[0])
			}
			return opts.withBackend(cmd.Context(), func(b *backend.Backend) error {
				stored, err := b.AddFileToMediaFolder(cmd.Context(), name, data)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), stored)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "desired media name (default file base name)")
	return cmd
}
