package flowctx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct {
	Name string
	Docs []string
}

type group struct {
	Members []*member
	Tags    map[string]int
	Created time.Time
}

func TestClone_Structural(t *testing.T) {
	src := &group{
		Members: []*member{{Name: "a", Docs: []string{"doc-ine-1"}}},
		Tags:    map[string]int{"round": 1},
		Created: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	out, tier := CloneWithTier(src)
	require.Equal(t, TierStructural, tier)
	assert.Equal(t, src, out)
	assert.NotSame(t, src, out)
	assert.NotSame(t, src.Members[0], out.Members[0])

	out.Members[0].Docs[0] = "changed"
	out.Tags["round"] = 9
	assert.Equal(t, "doc-ine-1", src.Members[0].Docs[0])
	assert.Equal(t, 1, src.Tags["round"])
}

type node struct {
	Name string
	Next *node
}

func TestClone_PreservesCycles(t *testing.T) {
	a := &node{Name: "a"}
	b := &node{Name: "b", Next: a}
	a.Next = b

	out, tier := CloneWithTier(a)
	require.Equal(t, TierStructural, tier)
	assert.NotSame(t, a, out)
	assert.Equal(t, "b", out.Next.Name)
	assert.Same(t, out, out.Next.Next)
}

type withHidden struct {
	Name   string `json:"name"`
	hidden map[string]int
}

func TestClone_FallsBackToJSON(t *testing.T) {
	src := withHidden{Name: "x", hidden: map[string]int{"a": 1}}

	out, tier := CloneWithTier(src)
	require.Equal(t, TierJSON, tier)
	assert.Equal(t, "x", out.Name)
	assert.Nil(t, out.hidden)
}

func TestClone_JSONKeepsDynamicType(t *testing.T) {
	var v any = withHidden{Name: "y"}

	out, tier := CloneWithTier(v)
	require.Equal(t, TierJSON, tier)
	got, ok := out.(withHidden)
	require.True(t, ok)
	assert.Equal(t, "y", got.Name)
}

type withFunc struct {
	Name string
	Fn   func()
}

func TestClone_FallsBackToReference(t *testing.T) {
	src := &withFunc{Name: "f", Fn: func() {}}

	out, tier := CloneWithTier(src)
	assert.Equal(t, TierReference, tier)
	assert.Same(t, src, out)
}

func TestClone_Nil(t *testing.T) {
	var v any
	assert.Nil(t, Clone(v))

	var p *member
	assert.Nil(t, Clone(p))
}

func TestCloneTier_String(t *testing.T) {
	assert.Equal(t, "structural", TierStructural.String())
	assert.Equal(t, "json", TierJSON.String())
	assert.Equal(t, "reference", TierReference.String())
	assert.Equal(t, "unknown", CloneTier(42).String())
}
