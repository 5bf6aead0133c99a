package character

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed characters.yaml
var builtinCatalog []byte

// catalogFile is the YAML layout of a character catalog.
type catalogFile struct {
	Default    string         `yaml:"default"`
	Characters []catalogEntry `yaml:"characters"`
}

type catalogEntry struct {
	Character `yaml:",inline"`

	// DefaultVoice makes an entry without voice_id speak with the
	// deployment's default voice.
	DefaultVoice bool `yaml:"default_voice"`
}

// Catalog is a decoded character catalog, ready for [NewRegistry].
type Catalog struct {
	Default    string
	Characters []Character
}

// Registry builds a [Registry] from the catalog.
func (c Catalog) Registry() (*Registry, error) {
	return NewRegistry(c.Characters, c.Default)
}

// DecodeCatalog reads a YAML catalog. Entries marked default_voice with an
// empty voice_id receive defaultVoice.
func DecodeCatalog(r io.Reader, defaultVoice string) (Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f catalogFile
	if err := dec.Decode(&f); err != nil {
		return Catalog{}, fmt.Errorf("character: decode catalog: %w", err)
	}

	cat := Catalog{Default: f.Default, Characters: make([]Character, 0, len(f.Characters))}
	for _, e := range f.Characters {
		c := e.Character
		if e.DefaultVoice && c.VoiceID == "" {
			c.VoiceID = defaultVoice
		}
		cat.Characters = append(cat.Characters, c)
	}
	return cat, nil
}

// Builtin returns the embedded catalog (mickey and elsa).
func Builtin(defaultVoice string) (Catalog, error) {
	return DecodeCatalog(bytes.NewReader(builtinCatalog), defaultVoice)
}

// LoadFile reads a catalog from a YAML file on disk.
func LoadFile(path, defaultVoice string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("character: open catalog: %w", err)
	}
	defer f.Close()
	return DecodeCatalog(f, defaultVoice)
}
