package library

import (
	"os"
	"strconv"
	"time"
)

// DefaultDataFile is the data file used when nothing else is configured.
const DefaultDataFile = "library_data.txt"

const (
	DefaultMaxBooks         = 100
	DefaultMaxUsers         = 50
	DefaultBorrowLimit      = 5
	DefaultBorrowPeriodDays = 14

	MaxTitleLength  = 100
	MaxAuthorLength = 50
	MaxGenreLength  = 30
	MaxNameLength   = 50
)

// Limits bounds the tables of a Library. A MaxBooks or MaxUsers of zero or
// less means the table is unbounded.
type Limits struct {
	MaxBooks     int
	MaxUsers     int
	BorrowLimit  int
	BorrowPeriod time.Duration
}

// DefaultLimits returns the deployment limits of the catalog.
func DefaultLimits() Limits {
	return Limits{
		MaxBooks:     DefaultMaxBooks,
		MaxUsers:     DefaultMaxUsers,
		BorrowLimit:  DefaultBorrowLimit,
		BorrowPeriod: DefaultBorrowPeriodDays * 24 * time.Hour,
	}
}

// Config holds everything needed to open a library.
type Config struct {
	DataFile string
	Limits   Limits
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{DataFile: DefaultDataFile, Limits: DefaultLimits()}
}

// LoadConfig reads configuration from environment variables with defaults.
func LoadConfig() Config {
	def := DefaultLimits()
	return Config{
		DataFile: getEnv("LIBRARY_DATA_FILE", DefaultDataFile),
		Limits: Limits{
			MaxBooks:     getIntEnv("LIBRARY_MAX_BOOKS", def.MaxBooks),
			MaxUsers:     getIntEnv("LIBRARY_MAX_USERS", def.MaxUsers),
			BorrowLimit:  getPositiveIntEnv("LIBRARY_BORROW_LIMIT", def.BorrowLimit),
			BorrowPeriod: time.Duration(getPositiveIntEnv("LIBRARY_BORROW_PERIOD_DAYS", DefaultBorrowPeriodDays)) * 24 * time.Hour,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getPositiveIntEnv is getIntEnv for settings where zero or less would make
// every loan impossible.
func getPositiveIntEnv(key string, defaultValue int) int {
	if v := getIntEnv(key, defaultValue); v > 0 {
		return v
	}
	return defaultValue
}
