package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// --- Globals & Styles ---

var (
	// Level colors
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)

	// Component colors
	databaseColor = color.New()
	reminderColor = color.New(color.FgMagenta)
	sessionColor  = color.New(color.FgMagenta)
	loaderColor   = color.New(color.FgCyan)

	DefaultTimeFormat = "15:04:05"
	Logger            *slog.Logger

	logFile *os.File
	logMu   sync.Mutex
)

// LevelFatal sits above slog.LevelError and is only used by LogFatal.
const LevelFatal = slog.LevelError + 4

func init() {
	InitLogger(false, "")
}

// InitLogger replaces the default slog logger. An empty logPath keeps output on stdout only.
func InitLogger(silent bool, logPath string) {
	logMu.Lock()
	defer logMu.Unlock()

	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logPath, err)
		} else {
			logFile = f
			writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logFile))
		}
	}

	color.NoColor = false

	Logger = slog.New(NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: silent,
		Level:  level,
	}))
	slog.SetDefault(Logger)
}

// CloseLogger flushes and closes the log file, if any.
func CloseLogger() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// LogFatal logs and panics so deferred cleanup in main still runs.
func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), LevelFatal, msg)
	panic(msg)
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogReminder(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "reminder"))
}

// LogReminderWarn is LogReminder at warn level, used for failed ticks and deliveries.
func LogReminderWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...), slog.String("component", "reminder"))
}

func LogSession(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "session"))
}

func LogLoader(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "loader"))
}

// --- Log Handler Implementation ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

// BotLogHandler prints "15:04:05 [LEVEL] [COMPONENT] message" lines.
// Attributes other than "component" are not rendered.
type BotLogHandler struct {
	w    io.Writer
	opts *BotLogHandlerOptions
	mu   *sync.Mutex
	now  func() time.Time
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
		now:  time.Now,
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	levelStr, levelColor := levelStyle(r.Level)

	component := ""
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	})

	fmt.Fprintf(h.w, "%s", h.now().Format(DefaultTimeFormat))

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		compColor := getComponentColor(component)
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(compColor, fmt.Sprintf("[%s] %s", component, r.Message)))
		return nil
	}

	fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, fmt.Sprintf("[%s] %s", levelStr, r.Message)))
	return nil
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(name string) slog.Handler       { return h }

// --- Formatting Helpers ---

func levelStyle(level slog.Level) (string, *color.Color) {
	switch {
	case level >= LevelFatal:
		return "FATAL", fatalColor
	case level >= slog.LevelError:
		return "ERROR", errorColor
	case level >= slog.LevelWarn:
		return "WARN", warnColor
	case level >= slog.LevelInfo:
		return "INFO", infoColor
	default:
		return "DEBUG", infoColor
	}
}

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "REMINDER":
		return reminderColor
	case "SESSION":
		return sessionColor
	case "LOADER":
		return loaderColor
	default:
		return color.New(color.FgCyan)
	}
}

// colorizeWithResets re-applies c after every reset sequence inside text,
// so nested colored fragments do not end the outer color early.
func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	return c.Sprint(strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq))
}

// --- ANSI Stripper ---

type StripANSIWriter struct {
	w  io.Writer
	re *regexp.Regexp
}

func NewStripANSIWriter(w io.Writer) *StripANSIWriter {
	return &StripANSIWriter{
		w:  w,
		re: regexp.MustCompile(`\x1b\[[0-9;]*m`),
	}
}

func (s *StripANSIWriter) Write(p []byte) (n int, err error) {
	clean := s.re.ReplaceAll(p, []byte(""))
	_, err = s.w.Write(clean)
	return len(p), err
}

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad   = "Failed to load config: %v"
	MsgConfigMissingToken   = "DISCORD_TOKEN is not set in .env file"
	MsgDatabaseInitSuccess  = "Database initialized successfully (%s)"
	MsgDatabaseTableError   = "Failed to create table: %w"
	MsgDatabasePragmaError  = "Failed to set pragma %s: %w"
	MsgDatabaseConnectRetry = "Database connection attempt %d failed: %v"
	MsgDaemonStarting       = "Starting..."
	MsgDaemonStopping       = "Shutting down..."
	MsgBotStarting          = "Starting %s..."
	MsgBotReady             = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown          = "Shutting down %s..."
	MsgBotStoppingOld       = "Stopping previous instance (PID %d)..."
	MsgBotRegisterFail      = "Command registration failed: %v"
	MsgGenericError         = "%v"

	// --- Command Loader & Registry ---
	MsgLoaderSyncCommands   = "Syncing %s commands..."
	MsgLoaderUpToDate       = "Commands are up to date. (Hash: %s)"
	MsgLoaderDevStarting    = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered  = "[DEV] Registered: %s"
	MsgLoaderProdStarting   = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered = "[PROD] Registered: %s"
	MsgLoaderProdFail       = "[PROD] Global registration failed: %w"
	MsgLoaderDevFail        = "[DEV] Guild registration failed: %w"
	MsgLoaderPanicRecovered = "Panic recovered in handler: %v"
	MsgLoaderSkipping       = "Skipping command registration as requested."
	MsgLoaderUnknownCommand = "No handler registered for command: %s"

	// --- Reminder System ---
	MsgReminderSchedulerStart   = "Polling every %s in %s"
	MsgReminderFailedToQueryDue = "Failed to query due reminders: %v"
	MsgReminderFailedToSend     = "Failed to deliver reminder %d to channel %s: %v"
	MsgReminderFailedToMark     = "Delivered reminder %d but failed to record it, it may fire again: %v"
	MsgReminderSent             = "Sent reminder %d to channel %s"
	MsgReminderTickSummary      = "Tick: %d due, %d delivered, %d failed"
	MsgReminderFailedToSave     = "Failed to save reminder: %v"
	MsgReminderFailedToQuery    = "Failed to query reminders: %v"
	MsgReminderFailedToDelete   = "Failed to delete reminder %d: %v"
	MsgReminderRespondError     = "Failed to respond to interaction: %v"
	MsgReminderAutocompleteFail = "Failed to query reminders for autocomplete: %v"
	MsgReminderNaturalTimeFail  = "Failed to initialize naturaltime parser: %v"
	MsgReminderSkippedRow       = "Skipping unreadable reminder row: %v"
	MsgReminderTickPanic        = "Recovered from panic while delivering reminder %d: %v"
	MsgReminderLoopPanic        = "Recovered from panic in reminder tick: %v"

	ErrReminderGuildOnly   = "This command can only be used in a server."
	ErrReminderSaveFailed  = "Failed to save reminder. Please try again."
	ErrReminderFetchFailed = "Failed to fetch reminders."
	ErrReminderDeleteFail  = "Failed to delete reminder. Please try again."
	ErrReminderInvalid     = "❌ %s"
	ErrReminderUnknownSub  = "Unknown reminder subcommand."
	MsgReminderCreated     = "✅ Reminder **#%d** created: <#%s> at **%s** on %s (%s)."
	MsgReminderDeleted     = "✅ Reminder **#%d** deleted."
	MsgReminderNoActive    = "No reminders set for this server."
	MsgReminderListHeader  = "## Reminders (%d)\n\n"
	MsgReminderListItem    = "**#%d** <#%s> at **%s** on %s (%s)\n> %s\n> Last sent: %s\n\n"
	MsgReminderNeverSent   = "never"
	MsgReminderLastSentAgo = "%s ago"
	MsgReminderListMore    = "*...and %d more*"
	MsgReminderChoice      = "#%d · %s on %s · %s"

	// --- Relative time ---
	MsgRelLessMinute = "less than a minute"
	MsgRelOne        = "1 %s"
	MsgRelMany       = "%d %ss"

	// --- Ping ---
	MsgPingResponse = "🏓 Pong! Gateway: **%s** | REST: **%s**"
	MsgPingUnknown  = "n/a"

	// --- Help ---
	MsgHelpHeader   = "## Commands\n\n"
	MsgHelpCommand  = "`/%s` %s\n"
	MsgHelpSub      = "-# `/%s %s` %s\n"
	MsgHelpUserMenu = "**%s** (right-click a member, then Apps)\n"
	MsgHelpFail     = "Failed to send help: %v"

	// --- User Info ---
	MsgUserInfoTitle    = "## %s\n"
	MsgUserInfoID       = "**ID:** `%s`\n"
	MsgUserInfoNick     = "**Nickname:** %s\n"
	MsgUserInfoCreated  = "**Account created:** <t:%d:F> (<t:%d:R>)\n"
	MsgUserInfoJoined   = "**Joined server:** <t:%d:F> (<t:%d:R>)\n"
	MsgUserInfoRoles    = "**Roles (%d):** %s\n"
	MsgUserInfoBot      = "**Bot account**\n"
	MsgUserInfoNoRoles  = "none"
	MsgUserInfoFail     = "Failed to send user info: %v"
	ErrUserInfoNotFound = "Couldn't find that user."

	// --- Session / Presence ---
	MsgSessionUpdateFail = "Presence update failed: %v"
	MsgSessionRotated    = "Status rotated to: \"%s\" (Next rotate in %v)"
	MsgSessionReminders  = "%d reminders scheduled"
	MsgSessionUptime     = "Up for %s"
	MsgStatusEnabled     = "✅ Status rotation enabled!"
	MsgStatusDisabled    = "✅ Status rotation disabled!"
	MsgStatusCmdFail     = "Failed to respond to status command: %v"
	ErrStatusSaveFailed  = "Failed to save status visibility."
	ErrStatusOwnerOnly   = "Only the bot owner can change the status."
)
