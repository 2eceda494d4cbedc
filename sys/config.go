package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
)

const (
	DefaultPollInterval   = 15 * time.Second
	DefaultQueryTimeout   = 30 * time.Second
	DefaultDeliverTimeout = 10 * time.Second
)

// Config is built once in main and handed to every collaborator that needs it.
type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	DatabaseURL  string
	OwnerIDs     []snowflake.ID
	Silent       bool
	LogToFile    bool

	// Location is the reference timezone every reminder is evaluated in.
	Location       *time.Location
	PollInterval   time.Duration
	QueryTimeout   time.Duration
	DeliverTimeout time.Duration
}

// LoadConfig reads envFile (or .env when empty) and then the process environment.
// A missing default .env is not an error; a missing explicit envFile is.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))
	logToFile, _ := strconv.ParseBool(os.Getenv("LOG_TO_FILE"))

	loc := time.Local
	if tz := strings.TrimSpace(os.Getenv("REMINDER_TIMEZONE")); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid REMINDER_TIMEZONE %q: %w", tz, err)
		}
		loc = l
	}

	pollInterval, err := envDuration("REMINDER_POLL_INTERVAL", DefaultPollInterval)
	if err != nil {
		return nil, err
	}
	queryTimeout, err := envDuration("REMINDER_QUERY_TIMEOUT", DefaultQueryTimeout)
	if err != nil {
		return nil, err
	}
	deliverTimeout, err := envDuration("REMINDER_DELIVER_TIMEOUT", DefaultDeliverTimeout)
	if err != nil {
		return nil, err
	}

	ownerIDs, err := parseOwnerIDs(os.Getenv("OWNER_IDS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Token:          os.Getenv("DISCORD_TOKEN"),
		GuildID:        strings.TrimSpace(os.Getenv("GUILD_ID")),
		DatabasePath:   dbPath,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		OwnerIDs:       ownerIDs,
		Silent:         silent,
		LogToFile:      logToFile,
		Location:       loc,
		PollInterval:   pollInterval,
		QueryTimeout:   queryTimeout,
		DeliverTimeout: deliverTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" {
		if _, err := snowflake.Parse(c.GuildID); err != nil || len(c.GuildID) < 17 || len(c.GuildID) > 20 {
			return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
		}
	}
	if c.Location == nil {
		return fmt.Errorf("missing reminder timezone")
	}
	if c.PollInterval <= 0 || c.QueryTimeout <= 0 || c.DeliverTimeout <= 0 {
		return fmt.Errorf("reminder intervals and timeouts must be positive")
	}
	if c.DatabaseURL == "" && c.DatabasePath == "" {
		return fmt.Errorf("either DATABASE_URL or DATABASE_PATH must be set")
	}
	return nil
}

// IsOwner reports whether id is listed in OWNER_IDS.
func (c *Config) IsOwner(id snowflake.ID) bool {
	for _, o := range c.OwnerIDs {
		if o == id {
			return true
		}
	}
	return false
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func parseOwnerIDs(raw string) ([]snowflake.ID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []snowflake.ID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := snowflake.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid OWNER_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetProjectName derives a name from the executable, falling back to the
// module name when run through `go run`.
func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "keeper"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") || strings.HasSuffix(projectName, ".test") {
			projectName = "keeper"
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
