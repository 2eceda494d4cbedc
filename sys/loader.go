package sys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
)

// SafeGo runs f in a new goroutine with panic recovery.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				LogError(MsgLoaderPanicRecovered, r)
				fmt.Fprintf(os.Stderr, "%s\n", debug.Stack())
			}
		}()
		f()
	}()
}

// ConfigStore is the key-value slice of the store the loader persists sync state in.
type ConfigStore interface {
	GetBotConfig(ctx context.Context, key string) (string, error)
	SetBotConfig(ctx context.Context, key, value string) error
}

// DaemonStarter decides whether a daemon runs and returns its loop and shutdown hook.
type DaemonStarter func(ctx context.Context, client *bot.Client) (ok bool, run func(), shutdown func())

type daemonEntry struct {
	starter DaemonStarter
	logger  func(format string, v ...any)
}

// Loader owns the command and daemon registries for one bot process.
type Loader struct {
	ctx       context.Context
	store     ConfigStore
	startedAt time.Time

	commands             []discord.ApplicationCommandCreate
	commandHandlers      map[string]func(event *events.ApplicationCommandInteractionCreate)
	autocompleteHandlers map[string]func(event *events.AutocompleteInteractionCreate)
	componentHandlers    map[string]func(event *events.ComponentInteractionCreate)

	daemons       []daemonEntry
	daemonsOnce   sync.Once
	shutdownHooks []func()
	shutdownMu    sync.Mutex
}

// NewLoader binds the registries to the application context, which every
// daemon receives.
func NewLoader(ctx context.Context, store ConfigStore) *Loader {
	return &Loader{
		ctx:                  ctx,
		store:                store,
		startedAt:            time.Now(),
		commandHandlers:      map[string]func(event *events.ApplicationCommandInteractionCreate){},
		autocompleteHandlers: map[string]func(event *events.AutocompleteInteractionCreate){},
		componentHandlers:    map[string]func(event *events.ComponentInteractionCreate){},
	}
}

func (l *Loader) Context() context.Context { return l.ctx }

func (l *Loader) StartedAt() time.Time { return l.startedAt }

// --- Command & Handler Registration ---

func (l *Loader) RegisterCommand(cmd discord.ApplicationCommandCreate, handler func(event *events.ApplicationCommandInteractionCreate)) {
	l.commands = append(l.commands, cmd)
	switch c := cmd.(type) {
	case discord.SlashCommandCreate:
		l.commandHandlers[c.CommandName()] = handler
	case discord.UserCommandCreate:
		l.commandHandlers[c.CommandName()] = handler
	case discord.MessageCommandCreate:
		l.commandHandlers[c.CommandName()] = handler
	}
}

func (l *Loader) RegisterAutocompleteHandler(cmdName string, handler func(event *events.AutocompleteInteractionCreate)) {
	l.autocompleteHandlers[cmdName] = handler
}

// RegisterComponentHandler matches customID exactly, or as a prefix when it ends in ":".
func (l *Loader) RegisterComponentHandler(customID string, handler func(event *events.ComponentInteractionCreate)) {
	l.componentHandlers[customID] = handler
}

// Commands returns the registered command definitions in registration order.
func (l *Loader) Commands() []discord.ApplicationCommandCreate {
	return l.commands
}

func (l *Loader) componentHandler(customID string) (func(event *events.ComponentInteractionCreate), bool) {
	if h, ok := l.componentHandlers[customID]; ok {
		return h, true
	}
	for prefix, h := range l.componentHandlers {
		if strings.HasSuffix(prefix, ":") && strings.HasPrefix(customID, prefix) {
			return h, true
		}
	}
	return nil, false
}

// --- Bot Initialization ---

// CreateClient builds a disgo client whose interaction events are routed
// through the loader's registries.
func (l *Loader) CreateClient(cfg *Config) (*bot.Client, error) {
	return disgo.New(cfg.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(gateway.IntentGuilds),
			gateway.WithPresenceOpts(
				gateway.WithPlayingActivity("Loading..."),
				gateway.WithOnlineStatus(discord.OnlineStatusOnline),
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagChannels),
		),
		bot.WithEventListenerFunc(l.onApplicationCommandInteraction),
		bot.WithEventListenerFunc(l.onAutocompleteInteraction),
		bot.WithEventListenerFunc(l.onComponentInteraction),
		bot.WithEventListenerFunc(l.onReady),
		bot.WithLogger(slog.Default()),
	)
}

// --- Command Syncing Logic ---

// calculateCommandHash generates a SHA256 hash of the commands slice.
func calculateCommandHash(cmds []discord.ApplicationCommandCreate) string {
	data, err := json.Marshal(cmds)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// shouldSync reports whether the commands differ from what was last pushed in mode.
func (l *Loader) shouldSync(ctx context.Context, mode, hash string, force bool) bool {
	if force || hash == "" {
		return true
	}
	lastHash, _ := l.store.GetBotConfig(ctx, "last_cmd_hash")
	lastMode, _ := l.store.GetBotConfig(ctx, "last_reg_mode")
	return hash != lastHash || mode != lastMode
}

// SyncCommands pushes the registry to a dev guild when guildIDStr is set and
// globally otherwise. Unchanged command sets are skipped unless force is set.
func (l *Loader) SyncCommands(ctx context.Context, client *bot.Client, guildIDStr string, force bool) error {
	mode := "global"
	if guildIDStr != "" {
		mode = "guild"
	}
	LogLoader(MsgLoaderSyncCommands, strings.ToUpper(mode))

	hash := calculateCommandHash(l.commands)
	if !l.shouldSync(ctx, mode, hash, force) {
		LogLoader(MsgLoaderUpToDate, hash[:8])
		return nil
	}

	if guildIDStr == "" {
		LogLoader(MsgLoaderProdStarting)
		created, err := client.Rest.SetGlobalCommands(client.ApplicationID, l.commands)
		if err != nil {
			return fmt.Errorf(MsgLoaderProdFail, err)
		}
		for _, cmd := range created {
			LogLoader(MsgLoaderProdRegistered, cmd.Name())
		}
	} else {
		guildID, err := snowflake.Parse(guildIDStr)
		if err != nil {
			return fmt.Errorf("invalid GUILD_ID: %w", err)
		}
		LogLoader(MsgLoaderDevStarting, guildIDStr)
		created, err := client.Rest.SetGuildCommands(client.ApplicationID, guildID, l.commands)
		if err != nil {
			return fmt.Errorf(MsgLoaderDevFail, err)
		}
		for _, cmd := range created {
			LogLoader(MsgLoaderDevRegistered, cmd.Name())
		}
	}

	_ = l.store.SetBotConfig(ctx, "last_reg_mode", mode)
	_ = l.store.SetBotConfig(ctx, "last_guild_id", guildIDStr)
	if hash != "" {
		_ = l.store.SetBotConfig(ctx, "last_cmd_hash", hash)
	}
	return nil
}

// --- Event Handlers ---

func (l *Loader) onReady(event *events.Ready) {
	botUser := event.User
	LogInfo(MsgBotReady, botUser.Username, botUser.ID.String(), os.Getpid(), time.Since(l.startedAt).Milliseconds())

	l.StartDaemons(event.Client())
}

func (l *Loader) onApplicationCommandInteraction(event *events.ApplicationCommandInteractionCreate) {
	name := event.Data.CommandName()
	h, ok := l.commandHandlers[name]
	if !ok {
		LogWarn(MsgLoaderUnknownCommand, name)
		return
	}
	SafeGo(func() { h(event) })
}

func (l *Loader) onAutocompleteInteraction(event *events.AutocompleteInteractionCreate) {
	if h, ok := l.autocompleteHandlers[event.Data.CommandName]; ok {
		SafeGo(func() { h(event) })
	}
}

func (l *Loader) onComponentInteraction(event *events.ComponentInteractionCreate) {
	if h, ok := l.componentHandler(event.Data.CustomID()); ok {
		SafeGo(func() { h(event) })
	}
}

// --- Daemon System ---

// RegisterDaemon registers a background daemon with a logger and start function.
func (l *Loader) RegisterDaemon(logger func(format string, v ...any), starter DaemonStarter) {
	l.daemons = append(l.daemons, daemonEntry{starter: starter, logger: logger})
}

// StartDaemons starts every registered daemon once; later calls (gateway
// reconnects fire Ready again) are no-ops.
func (l *Loader) StartDaemons(client *bot.Client) {
	l.daemonsOnce.Do(func() {
		type activeDaemon struct {
			entry daemonEntry
			run   func()
		}
		var active []activeDaemon

		for _, daemon := range l.daemons {
			if ok, run, shutdown := daemon.starter(l.ctx, client); ok && run != nil {
				if shutdown != nil {
					l.shutdownMu.Lock()
					l.shutdownHooks = append(l.shutdownHooks, shutdown)
					l.shutdownMu.Unlock()
				}
				active = append(active, activeDaemon{daemon, run})
			}
		}

		for _, ad := range active {
			ad.entry.logger(MsgDaemonStarting)
		}

		for _, ad := range active {
			SafeGo(ad.run)
		}
	})
}

// ShutdownDaemons runs every shutdown hook in parallel and waits for them.
func (l *Loader) ShutdownDaemons() {
	l.shutdownMu.Lock()
	defer l.shutdownMu.Unlock()

	var wg sync.WaitGroup
	for _, shutdown := range l.shutdownHooks {
		wg.Add(1)
		go func(s func()) {
			defer wg.Done()
			s()
		}(shutdown)
	}
	wg.Wait()
	l.shutdownHooks = nil
}
