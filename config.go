package filesearch

import (
	"os"
	"path/filepath"
	"runtime"
)

// Config holds all configuration for the filesearch engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.filesearch/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "documents". The file will be <DBName>.db inside the
	// storage directory (~/.filesearch/ or working dir).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.filesearch/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// Workers is the number of parsing worker goroutines used by
	// index_directory. Zero means "use available CPU count".
	Workers int `json:"workers" yaml:"workers"`

	// BatchThreshold is the number of pending writer results buffered
	// before a transactional commit.
	BatchThreshold int `json:"batch_threshold" yaml:"batch_threshold"`

	// QueueCapacity bounds the task and result channels between the
	// coordinator, workers, and writer.
	QueueCapacity int `json:"queue_capacity" yaml:"queue_capacity"`

	// Extensions is the allow-list used by discover() when not running in
	// include_all_files mode. Lowercased, without the leading dot.
	Extensions []string `json:"extensions" yaml:"extensions"`

	// ExtraSkipDirs augments the File Walker's built-in skip-set.
	ExtraSkipDirs []string `json:"extra_skip_dirs" yaml:"extra_skip_dirs"`

	// MaxFileSize, if positive, causes discover_all to skip files above
	// this many bytes, logging a warning per skip.
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// DefaultLimit is used by the Query Engine when a caller passes limit<=0.
	DefaultLimit int `json:"default_limit" yaml:"default_limit"`

	// MaxLimit bounds every search's limit parameter.
	MaxLimit int `json:"max_limit" yaml:"max_limit"`

	// DefaultMinFuzzyScore is the fuzzy search score floor used when the
	// caller does not specify one.
	DefaultMinFuzzyScore float64 `json:"default_min_fuzzy_score" yaml:"default_min_fuzzy_score"`

	// CandidateMultiplier controls Stage 1's candidate cap: min(multiplier*limit, CandidateCap).
	CandidateMultiplier int `json:"candidate_multiplier" yaml:"candidate_multiplier"`

	// CandidateCap is the hard ceiling on Stage 1 candidates regardless of limit.
	CandidateCap int `json:"candidate_cap" yaml:"candidate_cap"`

	// HighlightMaxLength bounds the excerpt returned by fuzzy search.
	HighlightMaxLength int `json:"highlight_max_length" yaml:"highlight_max_length"`

	// MaxSuggestions bounds the Suggestion helper's result count.
	MaxSuggestions int `json:"max_suggestions" yaml:"max_suggestions"`
}

// DefaultConfig returns a Config with sensible defaults for local use.
// Database is stored in ~/.filesearch/documents.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:               "documents",
		StorageDir:           "home",
		Workers:              runtime.NumCPU(),
		BatchThreshold:       10,
		QueueCapacity:        64,
		Extensions:           []string{"txt", "pdf", "docx", "xlsx", "xls"},
		MaxFileSize:          0,
		DefaultLimit:         10,
		MaxLimit:             1000,
		DefaultMinFuzzyScore: 30.0,
		CandidateMultiplier:  5,
		CandidateCap:         1000,
		HighlightMaxLength:   300,
		MaxSuggestions:       5,
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "documents"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		dir := filepath.Join(home, ".filesearch")
		return filepath.Join(dir, name+".db")
	}
}
