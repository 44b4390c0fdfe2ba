package config

import (
	"sort"
	"strconv"
	"strings"

	kpxcerr "github.com/mrz1836/kpxc/pkg/errors"
)

// field binds one dotted key to its value in a Config.
type field struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringField(ptr func(c *Config) *string) field {
	return field{
		get: func(c *Config) string { return *ptr(c) },
		set: func(c *Config, v string) error { *ptr(c) = v; return nil },
	}
}

func intField(ptr func(c *Config) *int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*ptr(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return kpxcerr.WithSuggestion(kpxcerr.ErrInvalidInput, "expected a whole number, got "+strconv.Quote(v))
			}
			*ptr(c) = n
			return nil
		},
	}
}

func boolField(ptr func(c *Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*ptr(c)) },
		set: func(c *Config, v string) error { *ptr(c) = parseBool(v); return nil },
	}
}

//nolint:gochecknoglobals // Static key table for config get/set
var fields = map[string]field{
	"home":                                stringField(func(c *Config) *string { return &c.Home }),
	"database.path":                       stringField(func(c *Config) *string { return &c.Database.Path }),
	"database.key_file":                   stringField(func(c *Config) *string { return &c.Database.KeyFile }),
	"database.inactivity_lock_seconds":    intField(func(c *Config) *int { return &c.Database.InactivityLockSeconds }),
	"cli.binary":                          stringField(func(c *Config) *string { return &c.CLI.Binary }),
	"search.max_results":                  intField(func(c *Config) *int { return &c.Search.MaxResults }),
	"security.unlock_attempts_per_minute": intField(func(c *Config) *int { return &c.Security.UnlockAttemptsPerMinute }),
	"security.unlock_burst":               intField(func(c *Config) *int { return &c.Security.UnlockBurst }),
	"output.default_format":               stringField(func(c *Config) *string { return &c.Output.DefaultFormat }),
	"output.color":                        stringField(func(c *Config) *string { return &c.Output.Color }),
	"output.verbose":                      boolField(func(c *Config) *bool { return &c.Output.Verbose }),
	"logging.level":                       stringField(func(c *Config) *string { return &c.Logging.Level }),
	"logging.file":                        stringField(func(c *Config) *string { return &c.Logging.File }),
}

// Keys returns every dotted key accepted by Get and Set, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value at a dotted key such as "database.path".
func (c *Config) Get(key string) (string, error) {
	f, ok := fields[strings.ToLower(key)]
	if !ok {
		return "", kpxcerr.WithDetails(kpxcerr.ErrUnknownConfigKey, map[string]string{"key": key})
	}
	return f.get(c), nil
}

// Set parses value into the dotted key and validates the result.
// On failure c is left unchanged.
func (c *Config) Set(key, value string) error {
	f, ok := fields[strings.ToLower(key)]
	if !ok {
		return kpxcerr.WithDetails(kpxcerr.ErrUnknownConfigKey, map[string]string{"key": key})
	}

	next := *c
	if err := f.set(&next, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
