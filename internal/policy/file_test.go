package policy

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const policyYAML = `
ags:
  documents:
    - id: doc-ine
      label: INE Vigente
    - id: doc-proof
      label: Comprobante de domicilio
      optional: true
  metadata:
    ocrThreshold: 0.9
    expiryRules:
      doc-proof: "<= 3m"
    income:
      threshold: 0.4
      documentId: doc-income
edomex-colectivo:
  documents:
    - id: doc-consent
      label: Carta consentimiento colectivo
  metadata:
    ocrThreshold: 0.8
    tanda:
      minMembers: 5
      maxMembers: 12
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "policies.yaml", policyYAML)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg, 2)

	ags := cfg["ags"]
	assert.Equal(t, 0.9, ags.Metadata.OCRThreshold)
	assert.True(t, ags.Documents[1].Optional)
	assert.Equal(t, "<= 3m", ags.Metadata.ExpiryRules["doc-proof"])
	require.NotNil(t, ags.Metadata.Income)
	assert.Equal(t, "doc-income", ags.Metadata.Income.DocumentID)

	col := cfg["edomex-colectivo"]
	require.NotNil(t, col.Metadata.Tanda)
	assert.Equal(t, 12, col.Metadata.Tanda.MaxMembers)
}

func TestLoadFile_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "policies.json",
		`{"ags":{"documents":[{"id":"doc-ine","label":"INE"}],"metadata":{"ocrThreshold":0.7}}}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg["ags"].Metadata.OCRThreshold)
}

func TestLoadFile_Rejects(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml list", "list.yaml", "- ags\n- edomex\n"},
		{"yaml scalar", "scalar.yml", "hello\n"},
		{"json array", "array.json", `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, dir, tt.file, tt.content))
			assert.ErrorIs(t, err, ErrConfigMalformed)
		})
	}

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, dir, "broken.yaml", "ags: [unclosed\n"))
	assert.Error(t, err)
}

func TestRegisterFile(t *testing.T) {
	obs := &countingObserver{}
	repo := NewRepository(WithObserver(obs))
	dir := t.TempDir()

	require.NoError(t, repo.RegisterFile(writeFile(t, dir, "p.yaml", policyYAML)))
	assert.InDelta(t, 0.9, repo.OCRThreshold(Context{Market: MarketAguascalientes, ClientType: ClientIndividual}), 1e-9)

	require.Error(t, repo.RegisterFile(writeFile(t, dir, "bad.yaml", "- nope\n")))
	assert.InDelta(t, 0.9, repo.OCRThreshold(Context{Market: MarketAguascalientes, ClientType: ClientIndividual}), 1e-9)
	assert.Equal(t, []string{"file:ok", "file:rejected"}, obs.events)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "policies.yaml", policyYAML)
	repo := NewRepository()
	require.NoError(t, repo.RegisterFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, NewWatcher(repo, path, 20*time.Millisecond).Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	agsCtx := Context{Market: MarketAguascalientes, ClientType: ClientIndividual}
	updated := `
ags:
  documents:
    - id: doc-ine
      label: INE Vigente
  metadata:
    ocrThreshold: 0.95
`
	// The watcher may not be registered yet on the first write; keep
	// rewriting until the change lands.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(updated), 0o644)
		return repo.OCRThreshold(agsCtx) == 0.95
	}, 5*time.Second, 100*time.Millisecond)
}

func TestNewWatcher_DefaultDebounce(t *testing.T) {
	w := NewWatcher(NewRepository(), "x.yaml", 0)
	assert.Equal(t, defaultWatchDebounce, w.debounce)
}
