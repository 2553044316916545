package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrConfigMalformed is returned for remote payloads that are not a JSON
	// object of rule entries.
	ErrConfigMalformed = eris.New("policy: remote config must be an object keyed by market")
	// ErrNoRemote is returned by SaveToRemote when no Saver is configured.
	ErrNoRemote = eris.New("policy: remote config store not available")
)

// aliases maps normalized remote keys onto rule sets. Anything else resolves
// to defaultKey.
var aliases = map[string]Key{
	"ags":                       {Market: MarketAguascalientes, ClientType: ClientIndividual},
	"aguascalientes":            {Market: MarketAguascalientes, ClientType: ClientIndividual},
	"aguascalientes-individual": {Market: MarketAguascalientes, ClientType: ClientIndividual},
	"edomex":                    {Market: MarketEdomex, ClientType: ClientIndividual},
	"edomex-individual":         {Market: MarketEdomex, ClientType: ClientIndividual},
	"edomex-colectivo":          {Market: MarketEdomex, ClientType: ClientColectivo},
}

var defaultKey = Key{Market: MarketOtros, ClientType: ClientIndividual}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeAlias lower-cases raw, strips accents and maps whitespace and
// underscores to hyphens.
func NormalizeAlias(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, raw)
	if err != nil {
		s = raw
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespaceRun.ReplaceAllString(s, "-")
	return strings.ReplaceAll(s, "_", "-")
}

// ResolveKey maps a remote alias to its rule set key. Unknown aliases
// resolve to the "otros" individual rule set.
func ResolveKey(raw string) Key {
	if k, ok := aliases[NormalizeAlias(raw)]; ok {
		return k
	}
	return defaultKey
}

// ParseRemoteConfig decodes a remote payload, rejecting anything that is not
// a JSON object.
func ParseRemoteConfig(raw []byte) (RemoteConfig, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrConfigMalformed
	}
	var cfg RemoteConfig
	if err := json.Unmarshal(trimmed, &cfg); err != nil {
		return nil, eris.Wrapf(ErrConfigMalformed, "decode: %v", err)
	}
	if cfg == nil {
		cfg = RemoteConfig{}
	}
	return cfg, nil
}

// RegisterFromRemoteConfig installs every entry of cfg through the alias
// table and keeps a copy of cfg as the remote snapshot. Keys are applied in
// sorted order, so when two aliases resolve to the same rule set the one
// sorting last wins.
func (r *Repository) RegisterFromRemoteConfig(cfg RemoteConfig) {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	builders := make(map[Key]Builder, len(keys))
	for _, alias := range keys {
		e := cfg[alias]
		builders[ResolveKey(alias)] = staticBuilder(e.Documents, e.Metadata)
	}

	r.mu.Lock()
	for k, b := range builders {
		r.builders[k] = b
	}
	r.remote = cfg.Clone()
	r.remoteUpdatedAt = r.nowFunc()
	r.mu.Unlock()
}

// RegisterFromRemoteJSON parses raw and registers it. A malformed payload is
// rejected and leaves the repository untouched.
func (r *Repository) RegisterFromRemoteJSON(raw []byte) error {
	cfg, err := ParseRemoteConfig(raw)
	if err != nil {
		r.observe("payload", "rejected")
		return err
	}
	r.RegisterFromRemoteConfig(cfg)
	r.observe("payload", "ok")
	return nil
}

// RemoteSnapshot returns a copy of the last registered remote config and
// when it was registered. ok is false if nothing has been registered.
func (r *Repository) RemoteSnapshot() (cfg RemoteConfig, updatedAt time.Time, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.remote == nil {
		return nil, time.Time{}, false
	}
	return r.remote.Clone(), r.remoteUpdatedAt, true
}

// Reload fetches the remote namespace and registers it. On any failure the
// current rule table is kept and the error is returned for logging. An empty
// payload is ignored. Concurrent calls share one fetch.
func (r *Repository) Reload(ctx context.Context) error {
	if r.loader == nil {
		return nil
	}

	_, err, _ := r.reloads.Do("reload", func() (any, error) {
		raw, err := r.loader.LoadNamespace(ctx, r.namespace)
		if err != nil {
			r.observe("remote", "error")
			r.log.Warn("policy: remote reload failed, keeping current policies",
				zap.String("namespace", r.namespace), zap.Error(err))
			return nil, eris.Wrapf(err, "policy: load namespace %s", r.namespace)
		}

		cfg, err := ParseRemoteConfig(raw)
		if err != nil {
			r.observe("remote", "rejected")
			r.log.Warn("policy: remote payload rejected", zap.String("namespace", r.namespace), zap.Error(err))
			return nil, err
		}
		if len(cfg) == 0 {
			r.observe("remote", "empty")
			return nil, nil
		}

		r.RegisterFromRemoteConfig(cfg)
		r.observe("remote", "ok")
		r.log.Info("policy: remote policies registered",
			zap.String("namespace", r.namespace), zap.Int("entries", len(cfg)))
		return nil, nil
	})
	return err
}

// SaveToRemote persists cfg and, once the write succeeds, registers it
// locally through the same path reads use. A nil cfg is rejected with
// ErrConfigMalformed before anything is written.
func (r *Repository) SaveToRemote(ctx context.Context, cfg RemoteConfig) error {
	if r.saver == nil {
		return ErrNoRemote
	}
	if cfg == nil {
		return eris.Wrap(ErrConfigMalformed, "policy: save nil remote config")
	}

	body, err := json.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "policy: marshal remote config")
	}
	if err := r.saver.Put(ctx, r.savePath, body); err != nil {
		r.observe("save", "error")
		return eris.Wrapf(err, "policy: save to %s", r.savePath)
	}

	r.RegisterFromRemoteConfig(cfg)
	r.observe("save", "ok")
	return nil
}

func (r *Repository) observe(source, result string) {
	if r.observer != nil {
		r.observer.ObservePolicyReload(source, result)
	}
}
