package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a RemoteConfig from a YAML or JSON file. Both formats go
// through ParseRemoteConfig so a file is validated exactly like a remote
// payload.
func LoadFile(path string) (RemoteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "policy: read file %s", path)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseRemoteConfig(data)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "policy: parse yaml %s", path)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, ErrConfigMalformed
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrapf(err, "policy: convert yaml %s", path)
	}
	return ParseRemoteConfig(raw)
}

// RegisterFile loads path and registers its entries as a remote config.
func (r *Repository) RegisterFile(path string) error {
	cfg, err := LoadFile(path)
	if err != nil {
		r.observe("file", "rejected")
		return err
	}
	r.RegisterFromRemoteConfig(cfg)
	r.observe("file", "ok")
	return nil
}
