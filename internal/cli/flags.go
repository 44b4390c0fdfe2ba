package cli

import (
	"github.com/spf13/pflag"

	"github.com/mrz1836/kpxc/internal/config"
)

// Flag names shared by every command that opens a database.
const (
	flagDatabase = "database"
	flagKeyFile  = "key-file"
	flagTimeout  = "timeout"
)

// databaseFlags override the database section of the config.
type databaseFlags struct {
	path    string
	keyFile string
	timeout int
}

func (f *databaseFlags) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&f.path, flagDatabase, "d", "", "path to the .kdbx database")
	fs.StringVarP(&f.keyFile, flagKeyFile, "k", "", "path to the database key file")
	fs.IntVar(&f.timeout, flagTimeout, config.DefaultInactivityLockSeconds,
		"seconds of inactivity before the shell locks the database (0 = never)")
}

// apply copies only the flags the user actually set, so config file and
// environment values survive when a flag is omitted.
func (f *databaseFlags) apply(fs *pflag.FlagSet, c *config.Config) {
	if fs.Changed(flagDatabase) {
		c.Database.Path = config.SanitizePath(f.path)
	}
	if fs.Changed(flagKeyFile) {
		c.Database.KeyFile = config.SanitizePath(f.keyFile)
	}
	if fs.Changed(flagTimeout) {
		c.Database.InactivityLockSeconds = f.timeout
	}
}
