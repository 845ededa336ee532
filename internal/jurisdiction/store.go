package jurisdiction

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/meridian-health/hl7-reporter/internal/codetable"
)

// Logic holds the output rules of a jurisdiction's configuration document.
type Logic struct {
	FileLocation string `json:"file_location"`
	FileFormat   string `json:"file_format"`
}

// Metadata is generated fresh each time a jurisdiction's configuration is
// loaded. It is never persisted or reused across invocations.
type Metadata struct {
	MessageControlID string
	MessageTimestamp string
}

// Config is one jurisdiction's configuration document.
type Config struct {
	DOH            string
	SpecificValues map[string]any  `json:"specific_values"`
	TestList       []codetable.Row `json:"test_list"`
	SegmentList    []string        `json:"segment_list"`
	Logic          Logic           `json:"logic"`
	Metadata       Metadata        `json:"-"`
}

// Specific returns a static field value from specific_values. A missing key is
// a configuration error surfaced with the key name.
func (c *Config) Specific(key string) (string, error) {
	v, ok := c.SpecificValues[key]
	if !ok {
		return "", fmt.Errorf("jurisdiction %s has no specific value %q", c.DOH, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("jurisdiction %s specific value %q is %T, not a string", c.DOH, key, v)
	}
	return s, nil
}

// SpecificBool returns a boolean static field value; missing keys read false.
func (c *Config) SpecificBool(key string) bool {
	b, _ := c.SpecificValues[key].(bool)
	return b
}

// Store loads jurisdiction configuration documents from a directory, lazily
// and cached for the duration of one invocation.
type Store struct {
	dir    string
	master *MasterFile
	cache  map[string]*Config
	now    func() time.Time
}

// NewStore loads the master file from dir and returns a store over it.
func NewStore(dir string) (*Store, error) {
	master, err := LoadMasterFile(dir)
	if err != nil {
		return nil, err
	}
	return &Store{
		dir:    dir,
		master: master,
		cache:  make(map[string]*Config),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Master returns the process-wide master code table.
func (s *Store) Master() *MasterFile {
	return s.master
}

// Config returns the configuration for one jurisdiction, loading it on first
// use. Message metadata is generated at load time.
func (s *Store) Config(doh string) (*Config, error) {
	doh = codetable.Clean(doh)
	if cfg, ok := s.cache[doh]; ok {
		return cfg, nil
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, titleCase(doh)+".json"))
	if err != nil {
		return nil, fmt.Errorf("reading %s configuration: %w", doh, err)
	}
	cfg := &Config{DOH: doh}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s configuration: %w", doh, err)
	}

	cfg.Metadata = Metadata{
		MessageControlID: newControlID(),
		MessageTimestamp: FormatTime(doh, s.now()),
	}

	s.cache[doh] = cfg
	return cfg, nil
}

// newControlID returns a fresh message control id, rendered as a decimal
// string so downstream systems that expect numeric control ids accept it.
func newControlID() string {
	id := uuid.New()
	return new(big.Int).SetBytes(id[:]).String()
}

// titleCase capitalizes every space-separated word so a cleaned jurisdiction
// name maps back to its configuration file ("new york" reads "New York.json").
func titleCase(s string) string {
	parts := strings.Split(s, " ")
	for i, part := range parts {
		r := []rune(part)
		if len(r) == 0 {
			continue
		}
		r[0] = unicode.ToUpper(r[0])
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}
