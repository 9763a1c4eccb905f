// Command nativetool inspects native library declaration manifests: it
// resolves path patterns, verifies that declared libraries and symbols are
// present on disk, and can watch libraries for rebuilds.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/MCpiroman/UnityNativeTool/pkg/natives"
)

type manifestDecl struct {
	Library  string   `json:"library"`
	Function string   `json:"function"`
	Params   []string `json:"params"`
	Ret      string   `json:"ret"`
}

type manifest struct {
	PathPattern  string         `json:"pathPattern"`
	AssetsPath   string         `json:"assetsPath"`
	ProjectPath  string         `json:"projectPath"`
	Declarations []manifestDecl `json:"declarations"`
}

func loadManifest(path string) (*manifest, []natives.Decl, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	decls := make([]natives.Decl, 0, len(m.Declarations))
	for _, d := range m.Declarations {
		sig := natives.Signature{Ret: natives.TypeVoid}
		if d.Ret != "" {
			ret, err := natives.ParseType(d.Ret)
			if err != nil {
				return nil, nil, fmt.Errorf("%s!%s: %w", d.Library, d.Function, err)
			}
			sig.Ret = ret
		}
		for _, p := range d.Params {
			pt, err := natives.ParseType(p)
			if err != nil {
				return nil, nil, fmt.Errorf("%s!%s: %w", d.Library, d.Function, err)
			}
			sig.Params = append(sig.Params, pt)
		}
		decls = append(decls, natives.Decl{Library: d.Library, Function: d.Function, Sig: sig})
	}
	return &m, decls, nil
}

func engineOptions(c *cli.Context, m *manifest, mode natives.Mode) natives.Options {
	opts := natives.Options{
		PathPattern: m.PathPattern,
		AssetsPath:  m.AssetsPath,
		ProjectPath: m.ProjectPath,
		Mode:        mode,
	}
	if v := c.String("pattern"); v != "" {
		opts.PathPattern = v
	}
	if v := c.String("assets"); v != "" {
		opts.AssetsPath = v
	}
	if v := c.String("proj"); v != "" {
		opts.ProjectPath = v
	}
	return opts
}

func printSnapshot(snap []natives.LibraryStatus) {
	for _, lib := range snap {
		fmt.Printf("%-20s %-10s %s\n", lib.Name, lib.State, lib.Path)
		for _, fn := range lib.Functions {
			line := fmt.Sprintf("  %-18s %-12s calls=%d", fn.Name, fn.State, fn.Calls)
			if fn.Err != "" {
				line += "  " + fn.Err
			}
			fmt.Println(line)
		}
	}
}

func main() {
	app := &cli.App{
		Name:  "nativetool",
		Usage: "inspect and verify native library declarations",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			cfg := zap.NewProductionConfig()
			if c.Bool("verbose") {
				cfg = zap.NewDevelopmentConfig()
			}
			log, err := cfg.Build()
			if err != nil {
				return err
			}
			natives.SetLogger(log)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "resolve",
				Usage: "expand a path pattern for a library name",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pattern", Value: natives.DefaultPathPattern},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "assets"},
					&cli.StringFlag{Name: "proj"},
				},
				Action: func(c *cli.Context) error {
					path, err := natives.ResolvePath(
						c.String("pattern"), c.String("name"),
						c.String("assets"), c.String("proj"))
					if err != nil {
						return err
					}
					fmt.Println(path)
					return nil
				},
			},
			{
				Name:  "check",
				Usage: "preload every declared library and symbol, report status",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "manifest", Required: true, Usage: "declaration manifest (JSON)"},
					&cli.StringFlag{Name: "pattern"},
					&cli.StringFlag{Name: "assets"},
					&cli.StringFlag{Name: "proj"},
				},
				Action: func(c *cli.Context) error {
					m, decls, err := loadManifest(c.String("manifest"))
					if err != nil {
						return err
					}
					e := natives.New(engineOptions(c, m, natives.Preload))
					defer e.Reset()
					report, err := e.Initialize(decls)
					if err != nil {
						return err
					}
					printSnapshot(e.Snapshot())
					if !report.Empty() {
						return cli.Exit(fmt.Sprintf("%d libraries and %d symbols failed",
							len(report.LoadErrors), len(report.SymbolErrors)), 1)
					}
					return nil
				},
			},
			{
				Name:  "watch",
				Usage: "load declared libraries and reload them as they are rebuilt",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "manifest", Required: true, Usage: "declaration manifest (JSON)"},
					&cli.StringFlag{Name: "pattern"},
					&cli.StringFlag{Name: "assets"},
					&cli.StringFlag{Name: "proj"},
					&cli.DurationFlag{Name: "tick", Value: 250 * time.Millisecond, Usage: "queue drain interval"},
				},
				Action: func(c *cli.Context) error {
					m, decls, err := loadManifest(c.String("manifest"))
					if err != nil {
						return err
					}
					opts := engineOptions(c, m, natives.Lazy)
					opts.WatchForChanges = true
					e := natives.New(opts)
					defer e.Reset()
					if _, err := e.Initialize(decls); err != nil {
						return err
					}
					for name, lerr := range e.LoadAll() {
						fmt.Fprintf(os.Stderr, "load %s: %v\n", name, lerr)
					}
					printSnapshot(e.Snapshot())

					sig := make(chan os.Signal, 1)
					signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
					tick := time.NewTicker(c.Duration("tick"))
					defer tick.Stop()
					for {
						select {
						case <-sig:
							return nil
						case <-tick.C:
							if e.Queue().Drain() > 0 {
								printSnapshot(e.Snapshot())
							}
						}
					}
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
