package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/v0xg/studiopilot/internal/studio"
	"github.com/v0xg/studiopilot/internal/workflow"
)

func newGenerateCmd(a *app) *cobra.Command {
	var materials []string
	cmd := &cobra.Command{
		Use:   "generate [source-pattern...]",
		Short: "Generate studio materials, one source at a time",
		Long: `generate selects each matching source on its own and starts the requested
studio materials for it. Patterns match source names case-insensitively; with
no pattern every source is processed. When the browser dies mid-run it is
restarted and the run resumes with the sources not yet finished.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("materials") {
				a.cfg.Studio.Materials = materials
			}
			types, err := a.cfg.Materials()
			if err != nil {
				return err
			}
			run, err := studio.RunSources(cmd.Context(), a.studioOpener(), args, types, a.log)
			fmt.Fprint(cmd.OutOrStdout(), run.Summary())
			return err
		},
	}
	cmd.Flags().StringSliceVarP(&materials, "materials", "m", nil,
		"Materials to generate: audio, video, mindmap, quiz, flashcards, infographic (default: config or all)")
	return cmd
}

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the notebook chat a question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			answer, ok, err := s.notebook.SendMessage(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("no answer within the response timeout")
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}

func newUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Add local files as notebook sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			failed := 0
			for _, path := range args {
				ok, err := s.notebook.UploadFile(cmd.Context(), path)
				if err != nil && cmd.Context().Err() != nil {
					return err
				}
				switch {
				case err != nil:
					fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: %v\n", path, err)
					failed++
				case !ok:
					fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: source count did not change\n", path)
					failed++
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", path)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(args))
			}
			return nil
		},
	}
}

func newAddTextCmd(a *app) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "add-text <file|->",
		Short: "Paste text from a file (or stdin) as a new source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			ok, err := s.notebook.AddTextSource(cmd.Context(), title, text)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("source count did not change")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ text source added")
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Title line placed above the text")
	return cmd
}

func newAddURLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add-url <url>...",
		Short: "Add web pages as notebook sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			failed := 0
			for _, site := range args {
				ok, err := s.notebook.AddWebsiteSource(cmd.Context(), site)
				if err != nil && cmd.Context().Err() != nil {
					return err
				}
				switch {
				case err != nil:
					fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: %v\n", site, err)
					failed++
				case !ok:
					fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: source count did not change\n", site)
					failed++
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", site)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d websites failed", failed, len(args))
			}
			return nil
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create [name]",
		Short: "Create a notebook and print its URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			url, err := s.notebook.CreateNotebook(cmd.Context(), a.cfg.Browser.URL, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func newWorkflowCmd(a *app) *cobra.Command {
	var (
		files     []string
		texts     []string
		sites     []string
		materials []string
		download  bool
		dir       string
		wait      time.Duration
		existing  bool
	)
	cmd := &cobra.Command{
		Use:   "workflow [name]",
		Short: "Create a notebook, add sources, generate and download materials",
		Long: `workflow runs the whole pipeline in one browser session: it creates a
notebook (or, with --existing, uses the one at --url), adds every --file,
--text and --website source, generates the requested materials per source and,
with --download, waits --wait and downloads what has finished.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("materials") {
				a.cfg.Studio.Materials = materials
			}
			types, err := a.cfg.Materials()
			if err != nil {
				return err
			}
			plan := workflow.Plan{
				Create:    !existing,
				Home:      a.cfg.Browser.URL,
				Files:     files,
				Websites:  sites,
				Materials: types,
				Wait:      wait,
			}
			if len(args) == 1 {
				plan.Name = args[0]
			}
			for _, path := range texts {
				text, err := readText(cmd.InOrStdin(), path)
				if err != nil {
					return err
				}
				plan.Texts = append(plan.Texts, workflow.TextSource{Title: textTitle(path), Text: text})
			}
			if download {
				plan.DownloadDir = dir
				if plan.DownloadDir == "" {
					plan.DownloadDir = a.cfg.Browser.DownloadDir
				}
			}

			res, err := workflow.Execute(cmd.Context(), a.workflowOpener(), plan, a.log)
			printWorkflow(cmd.OutOrStdout(), res)
			if err != nil {
				return err
			}
			if n := res.FailedSources(); n > 0 {
				return fmt.Errorf("%d of %d sources failed", n, len(res.Sources))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&files, "file", "f", nil, "Local file to upload (repeatable)")
	f.StringArrayVarP(&texts, "text", "t", nil, "Text file to paste as a source, - for stdin (repeatable)")
	f.StringArrayVarP(&sites, "website", "w", nil, "Web page URL to add as a source (repeatable)")
	f.StringSliceVarP(&materials, "materials", "m", nil,
		"Materials to generate: audio, video, mindmap, quiz, flashcards, infographic (default: config or all)")
	f.BoolVar(&download, "download", false, "Download finished materials at the end")
	f.StringVarP(&dir, "dir", "d", "", "Download directory (default: browser.download_dir)")
	f.DurationVar(&wait, "wait", 0, "Wait before downloading (default: timing.generation_wait)")
	f.BoolVar(&existing, "existing", false, "Use the notebook at --url instead of creating one")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if !cmd.Flags().Changed("wait") {
			wait = a.cfg.Timing.GenerationWait
		}
	}
	return cmd
}

// textTitle names a pasted text source after its file.
func textTitle(path string) string {
	if path == "-" {
		return ""
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func printWorkflow(w io.Writer, res *workflow.Result) {
	if res == nil {
		return
	}
	if res.NotebookURL != "" {
		fmt.Fprintf(w, "Notebook: %s\n", res.NotebookURL)
	}
	for _, src := range res.Sources {
		if src.Added {
			fmt.Fprintf(w, "✓ %s %s\n", src.Kind, src.Source)
		} else {
			fmt.Fprintf(w, "✗ %s %s: %s\n", src.Kind, src.Source, src.Error)
		}
	}
	if res.Run != nil {
		fmt.Fprint(w, res.Run.Summary())
	}
	if res.Downloads != nil {
		_ = printDownloads(w, res.Downloads, false)
	}
}

func readText(stdin io.Reader, arg string) (string, error) {
	var (
		data []byte
		err  error
	)
	if arg == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return string(data), nil
}

func newSourcesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the notebook's sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			sources, err := s.studio.ListSources(cmd.Context())
			if err != nil {
				return err
			}
			for _, src := range sources {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", src.Index+1, src.Name)
			}
			return nil
		},
	}
}

func newDownloadCmd(a *app) *cobra.Command {
	var (
		dir    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download every finished studio material",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.Browser.DownloadDir
			}
			s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			report, err := s.studio.DownloadCompleted(cmd.Context(), dir)
			if report != nil {
				if perr := printDownloads(cmd.OutOrStdout(), report, asJSON); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Download directory (default: browser.download_dir)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func printDownloads(w io.Writer, r *studio.DownloadReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	for _, it := range r.Items {
		switch it.Result {
		case studio.ResultDownloaded:
			fmt.Fprintf(w, "✓ %s (%s) → %s\n", it.Name, it.Kind, it.Path)
		case studio.ResultSkipped:
			fmt.Fprintf(w, "- %s (%s): %s\n", it.Name, it.Kind, it.Error)
		default:
			fmt.Fprintf(w, "✗ %s (%s): %s\n", it.Name, it.Kind, it.Error)
		}
	}
	fmt.Fprintf(w, "\nDownloaded: %d  Skipped: %d  Failed: %d  Total: %d\n",
		r.Downloaded, r.Skipped, r.Failed, r.Total)
	return nil
}

func newCatalogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the locator catalog in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, name := range a.catalog.Names() {
				e, _ := a.catalog.Entry(name)
				fmt.Fprintf(w, "%s", name)
				if e.Description != "" {
					fmt.Fprintf(w, "  # %s", e.Description)
				}
				fmt.Fprintln(w)
				for i, s := range e.Strategies {
					fmt.Fprintf(w, "  %d. %s\n", i+1, s)
				}
			}
			return nil
		},
	}
}
