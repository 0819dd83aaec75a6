package orchestrator

import (
	"strings"
	"time"
)

// Defaults for Config.
const (
	DefaultPollInterval      = 2 * time.Second
	DefaultPollTimeout       = 300 * time.Second
	DefaultResumeConcurrency = 4
	DefaultMaxUploadFiles    = 10
)

// DefaultAllowedExtensions are the document types the service accepts.
var DefaultAllowedExtensions = []string{"pdf", "xlsx", "xls", "docx", "doc"}

// Config holds runtime settings for pipeline runs.
type Config struct {
	// PollInterval is the wait between status fetches.
	PollInterval time.Duration

	// PollTimeout bounds each poll of an asynchronous stage.
	PollTimeout time.Duration

	// StrictValidation asks the service to treat warnings as errors.
	StrictValidation bool

	// Forms restricts generation to the listed form numbers. Empty means all.
	Forms []string

	// CarrierName is passed to generation.
	CarrierName string

	// ResumeConcurrency caps parallel cases in ResumeAll.
	ResumeConcurrency int

	// MaxUploadFiles caps one upload batch.
	MaxUploadFiles int

	// AllowedExtensions lists accepted file extensions without the dot.
	AllowedExtensions []string
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.ResumeConcurrency <= 0 {
		c.ResumeConcurrency = DefaultResumeConcurrency
	}
	if c.MaxUploadFiles <= 0 {
		c.MaxUploadFiles = DefaultMaxUploadFiles
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = DefaultAllowedExtensions
	}
	return c
}

func (c Config) allowsExtension(name string) bool {
	dot := strings.LastIndex(name, ".")
	if dot < 0 {
		return false
	}
	ext := strings.ToLower(name[dot+1:])
	for _, allowed := range c.AllowedExtensions {
		if ext == strings.ToLower(strings.TrimPrefix(allowed, ".")) {
			return true
		}
	}
	return false
}
