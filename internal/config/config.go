package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Region kinds. A memory region may serve several of them.
const (
	KindVectors   = "vectors"
	KindBootstrap = "bootstrap"
	KindCode      = "code"
	KindDataRO    = "data_ro"
	KindDataRW    = "data_rw"
)

var knownKinds = map[string]bool{
	KindVectors:   true,
	KindBootstrap: true,
	KindCode:      true,
	KindDataRO:    true,
	KindDataRW:    true,
}

// Target describes the processor and memory layout code is generated for.
type Target struct {
	Architecture string     `yaml:"architecture" toml:"architecture"`
	VFP          bool       `yaml:"vfp" toml:"vfp"`
	Convention   Convention `yaml:"convention" toml:"convention"`
	Memory       []Region   `yaml:"memory" toml:"memory"`
}

// Convention holds the calling convention budgets, in words. A nil
// FloatWords selects 4 when VFP is present and 0 otherwise.
type Convention struct {
	IntegerWords   int  `yaml:"integerWords,omitempty" toml:"integerWords,omitempty"`
	FloatWords     *int `yaml:"floatWords,omitempty" toml:"floatWords,omitempty"`
	WordsPerResult int  `yaml:"wordsPerResult,omitempty" toml:"wordsPerResult,omitempty"`
}

type Region struct {
	Name     string   `yaml:"name" toml:"name"`
	Kinds    []string `yaml:"kinds" toml:"kinds"`
	Base     uint32   `yaml:"base" toml:"base"`
	Size     uint32   `yaml:"size" toml:"size"`
	Reserved []Block  `yaml:"reserved,omitempty" toml:"reserved,omitempty"`
}

// Block is a reserved address range inside a region.
type Block struct {
	Name string `yaml:"name,omitempty" toml:"name,omitempty"`
	Base uint32 `yaml:"base" toml:"base"`
	Size uint32 `yaml:"size" toml:"size"`
}

func (r Region) Serves(kind string) bool {
	for _, k := range r.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// End is the first address past the region.
func (r Region) End() uint64 {
	return uint64(r.Base) + uint64(r.Size)
}

// Default returns an ARMv5 target with VFP and a single RAM image at 0.
func Default() *Target {
	t := &Target{
		Architecture: "armv5",
		VFP:          true,
		Memory: []Region{
			{Name: "vectors", Kinds: []string{KindVectors}, Base: 0, Size: 0x100},
			{Name: "ram", Kinds: []string{KindBootstrap, KindCode, KindDataRO, KindDataRW}, Base: 0x8000, Size: 0x00800000},
		},
	}
	t.normalize()
	return t
}

func (t *Target) normalize() {
	t.Architecture = strings.ToLower(strings.TrimSpace(t.Architecture))
	if t.Architecture == "" {
		t.Architecture = "armv5"
	}
	if t.Convention.IntegerWords == 0 {
		t.Convention.IntegerWords = 4
	}
	if t.Convention.FloatWords == nil {
		words := 0
		if t.VFP {
			words = 4
		}
		t.Convention.FloatWords = &words
	}
	if t.Convention.WordsPerResult == 0 {
		t.Convention.WordsPerResult = 2
	}
	for i := range t.Memory {
		r := &t.Memory[i]
		for j, k := range r.Kinds {
			r.Kinds[j] = strings.ToLower(strings.TrimSpace(k))
		}
	}
}

func (t *Target) validate() error {
	if _, ok := architectures[t.Architecture]; !ok {
		return fmt.Errorf("config: unknown architecture %q", t.Architecture)
	}
	if t.VFP && t.Version() == "v4" {
		return fmt.Errorf("config: vfp requires armv5 or later")
	}
	c := t.Convention
	if c.IntegerWords < 0 || c.IntegerWords > 4 {
		return fmt.Errorf("config: integerWords %d out of range 0..4", c.IntegerWords)
	}
	if *c.FloatWords < 0 || *c.FloatWords > 16 {
		return fmt.Errorf("config: floatWords %d out of range 0..16", *c.FloatWords)
	}
	if !t.VFP && *c.FloatWords != 0 {
		return fmt.Errorf("config: floatWords requires vfp")
	}
	if c.WordsPerResult < 1 {
		return fmt.Errorf("config: wordsPerResult must be positive")
	}
	if len(t.Memory) == 0 {
		return fmt.Errorf("config: no memory regions")
	}
	names := make(map[string]bool)
	for _, r := range t.Memory {
		if r.Name == "" {
			return fmt.Errorf("config: memory region without a name")
		}
		if names[r.Name] {
			return fmt.Errorf("config: duplicate memory region %q", r.Name)
		}
		names[r.Name] = true
		if r.Size == 0 || r.End() > 1<<32 {
			return fmt.Errorf("config: region %s: bad size %#x at %#x", r.Name, r.Size, r.Base)
		}
		if r.Base%4 != 0 {
			return fmt.Errorf("config: region %s: base %#x not word aligned", r.Name, r.Base)
		}
		if len(r.Kinds) == 0 {
			return fmt.Errorf("config: region %s serves nothing", r.Name)
		}
		for _, k := range r.Kinds {
			if !knownKinds[k] {
				return fmt.Errorf("config: region %s: unknown kind %q", r.Name, k)
			}
		}
		for _, b := range r.Reserved {
			end := uint64(b.Base) + uint64(b.Size)
			if b.Base < r.Base || end > r.End() {
				return fmt.Errorf("config: region %s: reserved block %#x+%#x outside region", r.Name, b.Base, b.Size)
			}
		}
	}
	return nil
}

var architectures = map[string]string{
	"armv4":   "v4",
	"armv4t":  "v4",
	"armv5":   "v5",
	"armv5t":  "v5",
	"armv5te": "v5",
	"armv7m":  "v7",
}

// Version returns the architecture as a semantic version ("v4", "v5" or
// "v7").
func (t *Target) Version() string {
	return architectures[t.Architecture]
}

// Family is the backend family the architecture belongs to.
func (t *Target) Family() string {
	return "arm"
}

// Load reads a target description. The format follows the extension:
// .yaml/.yml or .toml.
func Load(path string) (*Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var t Target
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &t)
	case ".toml":
		err = toml.Unmarshal(data, &t)
	default:
		return nil, fmt.Errorf("config: unsupported format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	t.normalize()
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Write stores t as YAML.
func Write(path string, t *Target) error {
	t.normalize()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
