package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/CZERTAINLY/Ingestor/internal/log"
	"github.com/CZERTAINLY/Ingestor/internal/model"
	"github.com/CZERTAINLY/Ingestor/internal/service"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var (
	userConfigPath string // /default/config/path/ingestor on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config
	logCloser      io.Closer

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
	flagMode           string // value of --mode flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "ingestor")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is ingestor.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")
	runCmd.Flags().StringVar(&flagMode, "mode", "", "ingest mode overriding the config file: batch or streaming")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initIngestor
	rootCmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		if logCloser == nil {
			return nil
		}
		return logCloser.Close()
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("ingestor failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "ingestor",
	Short:        "Forensic ingest of data sources into a case, providing CBOM reports",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run command reads the configuration and ingests all data sources",
	RunE:  doRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of an ingestor",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("ingestor: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:   %s\n", configPath)
		}
		fmt.Printf("ingestor: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	switch flagMode {
	case "":
	case model.ModeBatch, model.ModeStreaming:
		config.Ingest.Mode = flagMode
	default:
		return fmt.Errorf("unsupported mode %q", flagMode)
	}

	attrs := slog.Group("ingestor",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	svc, err := service.New(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.ErrorContext(ctx, "closing case", "error", err)
		}
	}()

	results, err := svc.Do(ctx)
	for _, r := range results {
		slog.InfoContext(ctx, "data source ingested",
			"data_source", r.DataSource,
			"job_id", r.JobID,
			"status", r.Status.String(),
			"errors", len(r.Errors),
		)
	}
	return err
}

func initIngestor(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("INGESTORCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "ingestor.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, "ingestor.yaml")
		err := os.MkdirAll(filepath.Dir(configPath), 0o755)
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		enc := yaml.NewEncoder(f)
		err = enc.Encode(config)
		if err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		cfg, err := model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error("invalid configuration", d.Attr("detail"))
			}
			return fmt.Errorf("parsing config: %w", err)
		}
		config = *cfg
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Service.Verbose = true
	}

	// initialize logging
	w, c, err := log.Open(config.Service.Log)
	if err != nil {
		return fmt.Errorf("opening log %s: %w", config.Service.Log, err)
	}
	logCloser = c
	slog.SetDefault(log.New(w, config.Service.Verbose))

	slog.Debug("ingestor run", "configPath", configPath)
	slog.Debug("ingestor run", "config", config)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
