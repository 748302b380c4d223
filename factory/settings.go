package factory

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ordered-streams/eventrecorder-go/recorder"
)

// Persistence module identifiers accepted in PERSISTENCE_MODULE.
const (
	ModuleMemory   = "memory"
	ModulePostgres = "postgres"
	ModuleSQLite   = "sqlite"
)

// Environment variable names read by LoadSettings.
const (
	EnvPersistenceModule        = "PERSISTENCE_MODULE"
	EnvDSN                      = "DSN"
	EnvPoolSize                 = "POOL_SIZE"
	EnvPoolMaxOverflow          = "POOL_MAX_OVERFLOW"
	EnvConnMaxAge               = "CONN_MAX_AGE"
	EnvPrePing                  = "PRE_PING"
	EnvLockTimeout              = "LOCK_TIMEOUT"
	EnvIdleInTransactionTimeout = "IDLE_IN_TRANSACTION_TIMEOUT"
	EnvSingleWriter             = "SINGLE_WRITER"
	EnvEventsTableName          = "EVENTS_TABLE_NAME"
	EnvTrackingTableName        = "TRACKING_TABLE_NAME"
)

var (
	// ErrUnknownPersistenceModule is returned for a PERSISTENCE_MODULE value
	// other than memory, postgres or sqlite.
	ErrUnknownPersistenceModule = errors.New("unknown persistence module")

	// ErrMissingDSN is returned when a database-backed module is selected
	// without a DSN.
	ErrMissingDSN = errors.New("dsn must be set for database-backed persistence modules")
)

// Settings holds everything needed to build a recorder stack. Zero values
// mean "use the backend default".
type Settings struct {
	PersistenceModule string
	DSN               string

	PoolSize        int
	PoolMaxOverflow int
	ConnMaxAge      time.Duration
	PrePing         bool
	SingleWriter    bool

	LockTimeout              time.Duration
	IdleInTransactionTimeout time.Duration

	EventsTableName   string
	TrackingTableName string
}

// LoadSettings reads Settings from the environment. Unset variables fall back
// to defaults; unparsable values are reported as recorder.ErrProgramming.
func LoadSettings() (Settings, error) {
	settings := Settings{
		PersistenceModule: strings.ToLower(envString(EnvPersistenceModule, ModuleMemory)),
		DSN:               envString(EnvDSN, ""),
		EventsTableName:   envString(EnvEventsTableName, ""),
		TrackingTableName: envString(EnvTrackingTableName, ""),
	}

	var err error

	if settings.PoolSize, err = envInt(EnvPoolSize, 0); err != nil {
		return Settings{}, err
	}

	if settings.PoolMaxOverflow, err = envInt(EnvPoolMaxOverflow, 0); err != nil {
		return Settings{}, err
	}

	if settings.ConnMaxAge, err = envDuration(EnvConnMaxAge, 0); err != nil {
		return Settings{}, err
	}

	if settings.PrePing, err = envBool(EnvPrePing, false); err != nil {
		return Settings{}, err
	}

	if settings.LockTimeout, err = envDuration(EnvLockTimeout, 0); err != nil {
		return Settings{}, err
	}

	if settings.IdleInTransactionTimeout, err = envDuration(EnvIdleInTransactionTimeout, 0); err != nil {
		return Settings{}, err
	}

	if settings.SingleWriter, err = envBool(EnvSingleWriter, false); err != nil {
		return Settings{}, err
	}

	return settings, settings.validate()
}

func (s Settings) validate() error {
	switch s.PersistenceModule {
	case ModuleMemory:
		return nil
	case ModulePostgres, ModuleSQLite:
		if s.DSN == "" {
			return errors.Join(recorder.ErrProgramming, ErrMissingDSN)
		}

		return nil
	default:
		return errors.Join(recorder.ErrProgramming,
			fmt.Errorf("%w: %s", ErrUnknownPersistenceModule, s.PersistenceModule))
	}
}

func envString(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}

	return fallback
}

func envInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}

	parsed, parseErr := strconv.Atoi(value)
	if parseErr != nil {
		return 0, errors.Join(recorder.ErrProgramming, fmt.Errorf("%s: %w", key, parseErr))
	}

	return parsed, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}

	parsed, parseErr := time.ParseDuration(value)
	if parseErr != nil {
		return 0, errors.Join(recorder.ErrProgramming, fmt.Errorf("%s: %w", key, parseErr))
	}

	return parsed, nil
}

func envBool(key string, fallback bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}

	parsed, parseErr := strconv.ParseBool(value)
	if parseErr != nil {
		return false, errors.Join(recorder.ErrProgramming, fmt.Errorf("%s: %w", key, parseErr))
	}

	return parsed, nil
}
