package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"

	. "github.com/switchyard-ai/switchyard/internal/logging"
)

//go:embed endpoints.json
var embeddedEndpoints []byte

// catalogFile is the on-disk shape shared by the embedded JSON defaults and
// TOML override files. Keys are endpoint ids in "provider/model" form.
type catalogFile struct {
	Endpoints map[string]Endpoint `json:"endpoints" toml:"endpoints"`
}

// Default returns a catalog built from the shipped endpoint table.
func Default() *Catalog {
	base, err := embeddedFile()
	if err != nil {
		L_error("catalog: failed to parse embedded endpoint table", "error", err)
		return New()
	}
	return fromFile(base)
}

// Load returns the shipped catalog with a TOML override file merged on top.
// Non-zero override fields win; endpoints only present in the override file
// are added. An empty path returns the defaults unchanged.
func Load(overridesPath string) (*Catalog, error) {
	base, err := embeddedFile()
	if err != nil {
		return nil, err
	}
	if overridesPath != "" {
		if err := mergeOverrides(&base, overridesPath); err != nil {
			return nil, err
		}
	}
	return fromFile(base), nil
}

// Reload re-reads the defaults plus the override file and swaps the endpoint
// table in place. Readers holding the catalog keep working throughout; a
// failed reload leaves the previous table untouched.
func (c *Catalog) Reload(overridesPath string) error {
	base, err := embeddedFile()
	if err != nil {
		return err
	}
	if overridesPath != "" {
		if err := mergeOverrides(&base, overridesPath); err != nil {
			return err
		}
	}
	c.load(base)
	L_debug("catalog: reloaded", "endpoints", c.Len(), "overrides", overridesPath)
	return nil
}

func embeddedFile() (catalogFile, error) {
	var file catalogFile
	if err := json.Unmarshal(embeddedEndpoints, &file); err != nil {
		return file, fmt.Errorf("parse embedded endpoint table: %w", err)
	}
	return file, nil
}

func mergeOverrides(base *catalogFile, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read endpoint overrides: %w", err)
	}
	var over catalogFile
	if err := toml.Unmarshal(data, &over); err != nil {
		return fmt.Errorf("parse endpoint overrides %s: %w", path, err)
	}
	if err := mergo.Merge(base, over, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge endpoint overrides: %w", err)
	}
	return nil
}

func fromFile(file catalogFile) *Catalog {
	c := &Catalog{}
	c.load(file)
	return c
}

// load normalizes a parsed file into the endpoint table.
func (c *Catalog) load(file catalogFile) {
	m := make(map[EndpointID]Endpoint, len(file.Endpoints))
	for key, ep := range file.Endpoints {
		id := EndpointID(strings.TrimSpace(key))
		if !id.Valid() {
			L_warn("catalog: skipping malformed endpoint id", "id", key)
			continue
		}
		ep.ID = id
		m[id] = ep
	}
	c.replace(m)
}
