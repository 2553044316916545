package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status DocumentStatus
		want   string
	}{
		{DocumentPending, "Pendiente"},
		{DocumentInReview, "En Revisión"},
		{DocumentApproved, "Aprobado"},
		{DocumentRejected, "Rechazado"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestFindDocument(t *testing.T) {
	t.Parallel()

	docs := []Document{
		{ID: "doc-ine", Status: DocumentApproved},
		{ID: "doc-proof", Status: DocumentPending},
	}

	d, ok := FindDocument(docs, "doc-ine")
	assert.True(t, ok)
	assert.Equal(t, DocumentApproved, d.Status)

	_, ok = FindDocument(docs, "DOC-INE")
	assert.False(t, ok, "ids match exactly")

	_, ok = FindDocument(docs, "doc-rfc")
	assert.False(t, ok)
}

func TestIsApproved(t *testing.T) {
	t.Parallel()

	docs := []Document{
		{ID: "doc-ine", Status: DocumentApproved},
		{ID: "doc-proof", Status: DocumentInReview},
	}

	assert.True(t, IsApproved(docs, "doc-ine"))
	assert.False(t, IsApproved(docs, "doc-proof"))
	assert.False(t, IsApproved(docs, "doc-missing"))
}
