// taskmill turns a product requirements document into a dependency-ordered
// implementation task list using whichever LLM provider is available.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/taskmill/taskmill/internal/config"
	"github.com/taskmill/taskmill/internal/generate"
	"github.com/taskmill/taskmill/internal/history"
	"github.com/taskmill/taskmill/internal/llm"
	. "github.com/taskmill/taskmill/internal/logging"
	"github.com/taskmill/taskmill/internal/prd"
	"github.com/taskmill/taskmill/internal/taskfile"
	"github.com/taskmill/taskmill/internal/ui"
)

const version = "0.1.0"

type cli struct {
	Debug bool `help:"Enable debug logging." short:"d"`

	Parse   parseCmd   `cmd:"" help:"Generate tasks from a requirements document."`
	History historyCmd `cmd:"" help:"Show recent generation runs."`
	Version versionCmd `cmd:"" help:"Print the version."`
}

type parseCmd struct {
	Document string  `arg:"" help:"Path to the requirements document." type:"existingfile"`
	NumTasks int     `help:"Number of tasks to generate." short:"n" default:"0"`
	Output   string  `help:"Output file path." short:"o" default:""`
	Format   string  `help:"Output format (json or yaml)." short:"f" default:""`
	Research bool    `help:"Prefer a web-connected provider for up-to-date answers." short:"r"`
	Model    string  `help:"Model name override for whichever provider is selected." short:"m"`
	Tokens   int     `help:"Override the provider's max output tokens." default:"0"`
	Temp     float64 `help:"Override the sampling temperature." default:"0"`
}

func (c *parseCmd) Run(cfg *config.Config) error {
	numTasks := c.NumTasks
	if numTasks <= 0 {
		numTasks = cfg.NumTasks
	}
	output := c.Output
	if output == "" {
		output = cfg.Output
	}
	format := c.Format
	if format == "" {
		format = cfg.Format
	}
	if !taskfile.ValidFormat(format) {
		return fmt.Errorf("unsupported format %q, use json or yaml", format)
	}

	document, err := prd.Read(c.Document)
	if err != nil {
		return err
	}

	if c.Model != "" {
		for _, pc := range []*config.ProviderConfig{
			&cfg.Provider.Anthropic, &cfg.Provider.OpenAI, &cfg.Provider.Perplexity,
			&cfg.Provider.Grok, &cfg.Provider.Ollama,
		} {
			pc.Model = c.Model
		}
	}

	creds := config.NewCredentials(cfg)
	registry := llm.DefaultRegistry(cfg)
	gen := generate.New(registry, creds)

	progress := ui.NewProgress("generating")
	batch, err := gen.Run(context.Background(), generate.Request{
		Document:    document,
		Source:      c.Document,
		NumTasks:    numTasks,
		Research:    c.Research,
		Format:      format,
		MaxTokens:   c.Tokens,
		Temperature: c.Temp,
		OnProgress:  progress.Update,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr)
		return fmt.Errorf("%s", llm.UserMessage(err))
	}
	progress.Done()

	if err := taskfile.Write(output, batch, format); err != nil {
		return err
	}

	if cfg.History.RecordingEnabled() {
		if store, herr := history.Open(cfg.History.Path); herr != nil {
			L_warn("history unavailable", "error", herr)
		} else {
			if rerr := store.Record(batch, output); rerr != nil {
				L_warn("history record failed", "error", rerr)
			}
			store.Close()
		}
	}

	ui.Summary(os.Stdout, batch)
	ui.Saved(os.Stdout, output)
	return nil
}

type historyCmd struct {
	Limit int `help:"Number of runs to show." default:"20"`
}

func (c *historyCmd) Run(cfg *config.Config) error {
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(c.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded yet")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %-10s %-28s %2d tasks  %s -> %s\n",
			r.GeneratedAt.Format("2006-01-02 15:04"),
			r.Provider, r.Model, r.TaskCount, r.Source, r.OutputPath)
	}
	return nil
}

type versionCmd struct{}

func (c *versionCmd) Run(cfg *config.Config) error {
	fmt.Printf("taskmill %s\n", version)
	return nil
}

func main() {
	var args cli
	ktx := kong.Parse(&args,
		kong.Name("taskmill"),
		kong.Description("Generate an implementation task list from a requirements document."),
		kong.UsageOnError(),
	)

	level := LevelInfo
	if args.Debug {
		level = LevelDebug
	}
	Init(&Config{Level: level, ShowCaller: args.Debug})

	cfg, err := config.Load()
	if err != nil {
		L_fatal("failed to load config: %v", err)
	}

	if err := ktx.Run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "taskmill: %v\n", err)
		os.Exit(1)
	}
}
