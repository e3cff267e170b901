package backend

import (
	"errors"
	"fmt"
	"strings"

	"sewa/internal/config"
)

var backendTypes = []BackendType{MemoryBackend, SQLiteBackend, SheetsBackend}

// FromAppConfig picks the backend settings out of the application config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	c := Config{
		Type:                BackendType(strings.ToLower(strings.TrimSpace(appConfig.DataBackend))),
		SQLiteDBPath:        appConfig.SQLiteDBPath,
		AMQPURL:             appConfig.AMQPURL,
		AMQPExchange:        appConfig.AMQPExchange,
		AMQPQueue:           appConfig.AMQPQueue,
		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		DataDirectory:       appConfig.DataDirectory,
	}
	return c, c.Validate()
}

// Validate checks the settings the selected backend cannot start without.
// The broker is optional for sqlite.
func (c Config) Validate() error {
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for the sqlite backend")
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for the sheets backend")
		}
	case MemoryBackend:
	default:
		names := make([]string, len(backendTypes))
		for i, t := range backendTypes {
			names[i] = t.String()
		}
		return fmt.Errorf("invalid backend type %q (want one of %s)", c.Type, strings.Join(names, ", "))
	}
	return nil
}
