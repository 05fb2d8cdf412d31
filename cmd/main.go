package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/deskfs/deskfs/config"
	"github.com/deskfs/deskfs/filesystem"
	dfuse "github.com/deskfs/deskfs/fuse"
	"github.com/deskfs/deskfs/identity"
	"github.com/deskfs/deskfs/internal/util"
	"github.com/deskfs/deskfs/migrate"
	"github.com/deskfs/deskfs/notify"
	"github.com/deskfs/deskfs/perm"
	"github.com/deskfs/deskfs/persist"
	"github.com/deskfs/deskfs/seed"
	"github.com/deskfs/deskfs/server"
	"github.com/deskfs/deskfs/session"
)

// Build identity, overridable with -ldflags for forks.
var (
	product = "deskfs"
	author  = "deskfs project"
	license = "MIT"
)

func main() {
	// Parse command line arguments
	var (
		configPath string
		verbose    int
		listen     string
		statePath  string
		unlock     string
		umount     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config file (yaml or json)")
	flag.StringVar(&listen, "listen", "", "HTTP listen address, overrides config")
	flag.StringVar(&statePath, "state", "", "Snapshot file path, overrides config")
	flag.StringVar(&unlock, "unlock", "", "Integrity unlock token for rebuilt binaries")
	flag.BoolVar(&umount, "umount", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flag.BoolVar(&umount, "u", false, "--umount (shorthand)")
	flag.IntVar(&verbose, "verbose", 3, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.IntVar(&verbose, "v", 3, "--verbose (shorthand)")
	flag.Parse()

	// Initialize logger
	if verbose < 1 {
		verbose = 1
	}
	if verbose > 5 {
		verbose = 5
	}
	logLvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	logLvl := logLvls[verbose-1]
	util.InitializeLogger(logLvl)
	logger := util.GetLogger("main")

	cfg := loadConfig(configPath, logLvl, listen, statePath)
	logger.Info().Str("listen", cfg.Listen).Str("state", cfg.StatePath).Msg("deskfs initializing")

	// Load persisted state, tolerate a fresh install
	store := persist.NewFileStore(cfg.StatePath)
	snap, err := store.Load()
	if err != nil && !errors.Is(err, persist.ErrNotFound) {
		logger.Fatal().Err(err).Msg("Failed to load snapshot")
	}

	// Reconcile with the embedded defaults
	def := seed.MustLoad()
	var storedRoot *filesystem.Node
	storedVersion := 0
	if snap != nil {
		storedRoot = snap.Root
		storedVersion = snap.Version
	}
	res := migrate.Run(storedRoot, storedVersion, def, time.Now())

	ids := identity.NewStore(perm.RootUser, cfg.PrimaryUser)
	ids.SetUsers(res.Users)
	ids.SetGroups(res.Groups)

	fs := filesystem.New(res.Root, ids)
	if snap != nil {
		fs.SetTrashOrigins(snap.TrashOrigins)
	}
	fs.SyncIdentityFiles()

	// Integrity gate: a rebranded binary runs read-only
	info := migrate.BuildInfo{Product: product, Author: author, License: license}
	if migrate.Compromised(info, unlock) {
		logger.Warn().Str("product", product).Msg("Build identity mismatch, filesystem is read-only")
		fs.SetReadOnly(true)
	}

	hub := notify.NewHub()
	hub.Register("log", notify.LogSink{})
	fs.SetNotifier(hub)

	sessions := session.NewManager(ids, fs.ReadOnly)

	// Debounced persistence of every committed generation
	debouncer := persist.NewDebouncer(store, cfg.SaveDebounce, func() *persist.Snapshot {
		return &persist.Snapshot{
			Version:      res.Version,
			Root:         fs.Root(),
			TrashOrigins: fs.TrashOrigins(),
		}
	})
	fs.OnChange(debouncer.Trigger)
	if res.Migrated || snap == nil {
		debouncer.Trigger()
	}

	srv := server.New(cfg, fs, sessions, hub)
	go func() {
		if err := srv.Run(); err != nil {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Optional FUSE mount when a mount point is passed as the argument
	var mount *dfuse.Mount
	if mnt := flag.Arg(0); mnt != "" {
		if umount {
			cmd := exec.Command("fusermount", "-u", mnt)
			// we ignore error here if not already mounted
			cmd.Run() // nolint:errcheck
		}
		mount, err = dfuse.Serve(fs, cfg, mnt)
		if err != nil {
			logger.Fatal().Err(err).Str("mountpoint", mnt).Msg("Failed to mount filesystem")
		}
	}

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	if mount != nil {
		if err := mount.Unmount(); err != nil {
			logger.Error().Err(err).Msg("Failed to unmount filesystem")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop HTTP server")
	}

	debouncer.Flush()
	logger.Info().Msg("State saved, goodbye")
}

func loadConfig(path string, logLvl util.LogLevel, listen, statePath string) *config.Config {
	override := &config.ConfigOverride{LogLvl: &logLvl}
	if path != "" {
		fileOverride, err := config.LoadConfigOverrideFile(path)
		if err != nil {
			logger := util.GetLogger("main")
			logger.Fatal().Err(err).Str("config", path).Msg("Failed to load config file")
		}
		fileOverride.LogLvl = &logLvl
		override = fileOverride
	}
	if listen != "" {
		override.Listen = &listen
	}
	if statePath != "" {
		override.StatePath = &statePath
	}
	return config.NewConfig(override)
}
