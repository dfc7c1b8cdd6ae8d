package migration

import (
	"time"

	"github.com/edvin/tenancy/internal/model"
)

const (
	DefaultCommandTimeout = 300 * time.Second
	DefaultJournalTable   = "schemaversions"
)

// Options control one migration run.
type Options struct {
	// Provider is used when the stored credentials do not name one.
	Provider        model.DatabaseProvider
	ScriptsDir      string
	UseTransactions bool
	CommandTimeout  time.Duration
	// JournalSchema defaults per provider: public, dbo, or the connection's
	// database for MySQL.
	JournalSchema *string
	JournalTable  string
}

// DefaultOptions runs all pending scripts in one transaction with a five
// minute per-command timeout.
func DefaultOptions() Options {
	return Options{
		UseTransactions: true,
		CommandTimeout:  DefaultCommandTimeout,
		JournalTable:    DefaultJournalTable,
	}
}

func (o Options) withDefaults(scriptsDir string) Options {
	if o.ScriptsDir == "" {
		o.ScriptsDir = scriptsDir
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.JournalTable == "" {
		o.JournalTable = DefaultJournalTable
	}
	return o
}
