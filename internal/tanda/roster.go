package tanda

import (
	"strings"

	"github.com/conductores/onboarding-engine/internal/model"
	"github.com/conductores/onboarding-engine/internal/policy"
	tandaapi "github.com/conductores/onboarding-engine/pkg/tanda"
)

// Group documents accepted as roster consent, in order of preference.
const (
	ConsentDocumentID = "doc-consent"
	RosterDocumentID  = "doc-roster"
)

type rosterPayload struct {
	members []tandaapi.RosterMember
	consent *tandaapi.RosterDocument
}

// buildRoster pairs every member with an approved INE and RFC. It returns
// false when any member is incomplete; partial rosters are never sent.
func buildRoster(members int, docs []model.Document) (rosterPayload, bool) {
	if members <= 0 {
		return rosterPayload{}, false
	}

	out := rosterPayload{members: make([]tandaapi.RosterMember, 0, members)}
	for i := 1; i <= members; i++ {
		ine, ok := approvedDocument(docs, policy.MemberINEID(i))
		if !ok {
			return rosterPayload{}, false
		}
		rfc, ok := approvedDocument(docs, policy.MemberRFCID(i))
		if !ok {
			return rosterPayload{}, false
		}
		out.members = append(out.members, tandaapi.RosterMember{
			MemberIndex: i,
			INE:         rosterDocument(ine),
			RFC:         rosterDocument(rfc),
		})
	}

	for _, id := range []string{ConsentDocumentID, RosterDocumentID} {
		if d, ok := approvedDocument(docs, id); ok {
			rd := rosterDocument(d)
			out.consent = &rd
			break
		}
	}
	return out, true
}

func approvedDocument(docs []model.Document, id string) (model.Document, bool) {
	for _, d := range docs {
		if strings.EqualFold(d.ID, id) && d.Approved() {
			return d, true
		}
	}
	return model.Document{}, false
}

func rosterDocument(d model.Document) tandaapi.RosterDocument {
	rd := tandaapi.RosterDocument{DocumentID: d.ID}
	if d.FileURL != "" {
		url := d.FileURL
		rd.FileURL = &url
	}
	return rd
}
