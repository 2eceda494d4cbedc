package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/leeineian/keeper/home"
	"github.com/leeineian/keeper/proc"
	"github.com/leeineian/keeper/sys"
	"github.com/urfave/cli"
)

const pidFile = ".keeper.pid"

var (
	silentFlag    bool
	skipRegFlag   bool
	forceSyncFlag bool
	envFileFlag   string
)

var appFlags = []cli.Flag{
	cli.BoolFlag{
		Name:        "silent",
		Usage:       "disable all log output",
		Destination: &silentFlag,
	},
	cli.BoolFlag{
		Name:        "skip-reg",
		Usage:       "skip slash command registration",
		Destination: &skipRegFlag,
	},
	cli.BoolFlag{
		Name:        "force-sync",
		Usage:       "register slash commands even when they look unchanged",
		Destination: &forceSyncFlag,
	},
	cli.StringFlag{
		Name:        "env-file, e",
		Usage:       "load environment variables from `FILE` instead of .env",
		EnvVar:      "KEEPER_ENV_FILE",
		Destination: &envFileFlag,
	},
}

func main() {
	// LogFatal panics so deferred cleanup runs; turn that into a clean exit here.
	defer func() {
		if r := recover(); r != nil {
			if msg, ok := r.(string); ok {
				fmt.Fprintf(os.Stderr, "\n[FATAL] %s\n", msg)
				os.Exit(1)
			}
			panic(r)
		}
	}()

	app := cli.App{
		Name:      "keeper",
		HelpName:  "keeper",
		Usage:     "A Discord bot that posts recurring reminders.",
		Version:   "v0.1.0",
		UsageText: "keeper [--silent] [--skip-reg] [--force-sync] [--env-file FILE]",
		Flags:     appFlags,
		Action:    run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "keeper: %s\n", err.Error())
		os.Exit(1)
	}
}

func run(_ *cli.Context) error {
	cfg, err := sys.LoadConfig(envFileFlag)
	if err != nil {
		return fmt.Errorf(sys.MsgConfigFailedToLoad, err)
	}

	logPath := ""
	if cfg.LogToFile {
		logPath = sys.GetProjectName() + ".log"
	}
	sys.InitLogger(silentFlag || cfg.Silent, logPath)
	defer sys.CloseLogger()

	release, err := acquirePIDLock(pidFile)
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sys.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open reminder store: %w", err)
	}
	defer store.Close()

	loader := sys.NewLoader(ctx, store)
	home.Register(loader, store, cfg)
	loader.RegisterDaemon(sys.LogReminder, proc.ReminderDaemon(store, cfg))
	loader.RegisterDaemon(sys.LogSession, proc.StatusDaemon(store, loader.StartedAt()))

	client, err := loader.CreateClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create Discord client: %w", err)
	}
	defer client.Close(context.Background())

	botName := sys.GetProjectName()
	sys.LogInfo(sys.MsgBotStarting, botName)

	if !skipRegFlag {
		if err := loader.SyncCommands(ctx, client, cfg.GuildID, forceSyncFlag); err != nil {
			sys.LogError(sys.MsgBotRegisterFail, err)
		}
	} else {
		sys.LogLoader(sys.MsgLoaderSkipping)
	}

	if err := client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	<-ctx.Done()

	if botUser, ok := client.Caches.SelfUser(); ok {
		botName = botUser.Username
	}
	sys.LogInfo(sys.MsgBotShutdown, botName)
	loader.ShutdownDaemons()

	return nil
}

// acquirePIDLock takes an exclusive lock on path so only one process polls
// the store. A previous instance holding the lock is asked to stop first.
func acquirePIDLock(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open PID file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		if err != syscall.EWOULDBLOCK {
			f.Close()
			return nil, fmt.Errorf("failed to lock PID file: %w", err)
		}

		var oldPid int
		_, _ = f.Seek(0, 0)
		if _, scanErr := fmt.Fscanf(f, "%d", &oldPid); scanErr == nil && oldPid > 0 && oldPid != os.Getpid() {
			if process, procErr := os.FindProcess(oldPid); procErr == nil {
				sys.LogInfo(sys.MsgBotStoppingOld, oldPid)
				_ = process.Signal(syscall.SIGTERM)
			}
		}

		deadline := time.Now().Add(5 * time.Second)
		for {
			err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
			if err == nil {
				break
			}
			if time.Now().After(deadline) {
				f.Close()
				return nil, fmt.Errorf("another instance still holds %s", path)
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d", os.Getpid())
	_ = f.Sync()

	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		_ = os.Remove(path)
	}, nil
}
