package model

// DocumentStatus is the review state of an uploaded document.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "Pendiente"
	DocumentInReview DocumentStatus = "En Revisión"
	DocumentApproved DocumentStatus = "Aprobado"
	DocumentRejected DocumentStatus = "Rechazado"
)

// Document is a client-side artifact tracked through the onboarding flow.
type Document struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Status     DocumentStatus `json:"status"`
	Tooltip    string         `json:"tooltip,omitempty"`
	IsOptional bool           `json:"isOptional,omitempty"`
	Group      string         `json:"group,omitempty"`
	FileURL    string         `json:"fileUrl,omitempty"`
}

// Approved reports whether the document passed review.
func (d Document) Approved() bool {
	return d.Status == DocumentApproved
}

// FindDocument returns the first document whose id equals id exactly.
func FindDocument(docs []Document, id string) (Document, bool) {
	for _, d := range docs {
		if d.ID == id {
			return d, true
		}
	}
	return Document{}, false
}

// IsApproved reports whether a document with the given id exists and is approved.
func IsApproved(docs []Document, id string) bool {
	d, ok := FindDocument(docs, id)
	return ok && d.Approved()
}
