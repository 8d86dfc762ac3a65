package main

import (
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kokorod/internal/catalog"
	"kokorod/internal/config"
)

// rootOptions holds persistent flags. Flags override file and environment.
type rootOptions struct {
	configPath string
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}
	root := &cobra.Command{
		Use:           "kokorod",
		Short:         "Kokoro text-to-speech server",
		Long:          "kokorod serves Kokoro speech synthesis over HTTP with shared rate limiting and queue admission.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Config file (.yaml, .yml, .json, .toml)")
	pf.String("addr", "", "HTTP listen address (KOKORO_ADDR)")
	pf.String("redis-url", "", "Counter store URL (KOKORO_REDIS_URL)")
	pf.String("backend", "", "Inference backend: http|tone (KOKORO_BACKEND)")
	pf.String("backend-url", "", "Inference sidecar base URL (KOKORO_BACKEND_URL)")
	pf.String("default-voice", "", "Voice used when a request names none (KOKORO_DEFAULT_VOICE)")
	pf.Int("workers", 0, "Concurrent inference jobs (KOKORO_INFERENCE_WORKERS)")
	pf.String("log-level", "", "Log level: debug|info|warn|error (KOKORO_LOG_LEVEL)")
	pf.String("log-format", "", "Log format: json|console (KOKORO_LOG_FORMAT)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE:  func(cmd *cobra.Command, args []string) error { return runServe(cmd, opts) },
	}
	voices := &cobra.Command{
		Use:   "voices",
		Short: "List the voice catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			return printVoices(cmd.OutOrStdout(), cat, cfg.DefaultVoice)
		},
	}
	showConfig := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("kokorod", version)
		},
	}
	root.AddCommand(serve, voices, showConfig, versionCmd)
	return root
}

// resolve builds the effective configuration: defaults < file < env < flags.
func (o *rootOptions) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Resolve(o.configPath)
	if err != nil {
		return cfg, err
	}
	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	str("addr", &cfg.Addr)
	str("redis-url", &cfg.RedisURL)
	str("backend", &cfg.Backend)
	str("backend-url", &cfg.BackendURL)
	str("default-voice", &cfg.DefaultVoice)
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	if f.Changed("workers") {
		cfg.InferenceWorkers, _ = f.GetInt("workers")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	if cfg.VoicesFile != "" {
		return catalog.LoadFile(cfg.VoicesFile)
	}
	return catalog.Default(), nil
}

func printVoices(w io.Writer, cat *catalog.Catalog, defaultVoice string) error {
	for _, v := range cat.List() {
		mark := " "
		if v.ID == defaultVoice {
			mark = "*"
		}
		if _, err := io.WriteString(w, mark+" "+v.ID+"\t"+v.Name+"\t"+string(v.Gender)+"\t"+v.Accent+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
