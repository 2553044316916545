package policy

import (
	"fmt"
	"maps"
)

const (
	// DefaultOCRThreshold applies to markets without a specific setting.
	DefaultOCRThreshold = 0.85
	// DefaultCollectiveSize is used when a collective case has no member count yet.
	DefaultCollectiveSize = 5
	// MaxCollectiveMembers caps per-member document generation.
	MaxCollectiveMembers = 12

	kycLabel = "Verificación Biométrica (Metamap)"
)

// Builder derives a Result from a Context. Builders must be pure.
type Builder func(Context) Result

var (
	docINE   = Document{ID: "doc-ine", Label: "INE anverso/reverso", Tooltip: "Debe estar vigente al menos 90 días"}
	docProof = Document{ID: "doc-proof", Label: "Comprobante de domicilio", Tooltip: "Factura o recibo no mayor a 3 meses"}
	docCSF   = Document{ID: "doc-csf", Label: "Constancia de situación fiscal", Tooltip: "Descargar desde el portal del SAT (máx. 90 días)"}
	docKYC   = Document{ID: "doc-kyc", Label: kycLabel, Tooltip: "Verificación biométrica obligatoria en Metamap"}
	docCard  = Document{ID: "doc-tarjeta-circulacion", Label: "Tarjeta de circulación", Tooltip: "Tarjeta vigente de la unidad titular"}
)

var individualExpiryRules = map[string]string{
	"doc-ine":                 "vigencia >= 90d",
	"doc-proof":               "<= 3m",
	"doc-csf":                 "<= 90d",
	"doc-tarjeta-circulacion": "vigencia >= 90d",
	"doc-concesion":           "vigencia >= 1a",
}

func builtinBuilders() map[Key]Builder {
	return map[Key]Builder{
		{Market: MarketAguascalientes, ClientType: ClientIndividual}: buildAguascalientesIndividual,
		{Market: MarketEdomex, ClientType: ClientIndividual}:         buildEdomexIndividual,
		{Market: MarketEdomex, ClientType: ClientColectivo}:          buildEdomexColectivo,
	}
}

func individualProtection() *ProtectionPolicy {
	return &ProtectionPolicy{
		Required:              false,
		CoverageOptions:       []CoverageType{CoverageStandard, CoveragePremium},
		DefaultCoverage:       CoverageStandard,
		SimulateEndpoint:      "/v1/protection/simulate",
		ApplyEndpoint:         "/v1/protection/apply",
		ScoreEndpoint:         "/v1/health/score",
		FallbackScoreEndpoint: "/v1/health/cache",
	}
}

func incomeDocument(c Context) Document {
	optional := c.RequiresIncomeProof == nil || !*c.RequiresIncomeProof
	tooltip := "Obligatorio: el pago mensual supera el umbral configurado"
	if optional {
		tooltip = "Se solicita cuando el pago mensual supera el umbral configurado"
	}
	return Document{
		ID:       "doc-income",
		Label:    "Comprobante de ingresos",
		Optional: optional,
		Tooltip:  tooltip,
	}
}

func buildAguascalientesIndividual(c Context) Result {
	docs := []Document{docINE, docProof, docCSF}

	if c.SaleType == SaleFinanciero {
		docs = append(docs,
			Document{ID: "doc-rfc", Label: "RFC del cliente", Tooltip: "Requerido solo para planes con financiamiento"},
			docCard,
			Document{ID: "doc-concesion", Label: "Copia de la concesión", Tooltip: "Documento que acredita la concesión activa de la ruta"},
			docKYC,
		)
	}
	docs = append(docs, incomeDocument(c))

	return Result{
		Documents: docs,
		Metadata: Metadata{
			OCRThreshold: DefaultOCRThreshold,
			ExpiryRules:  maps.Clone(individualExpiryRules),
			Protection:   individualProtection(),
			Income:       &IncomePolicy{Threshold: 0.4, DocumentID: "doc-income"},
		},
	}
}

func buildEdomexIndividual(c Context) Result {
	docs := []Document{
		docINE,
		docProof,
		{ID: "doc-rfc", Label: "RFC del cliente", Tooltip: "Validación obligatoria en EdoMex"},
		docCSF,
		docCard,
		{ID: "doc-concesion", Label: "Copia de la concesión", Tooltip: "Documento emitido por la autoridad local"},
		{ID: "doc-carta-aval", Label: "Carta Aval de Ruta", Tooltip: "Documento emitido y validado por el ecosistema/ruta"},
		{ID: "doc-convenio-dacion", Label: "Convenio de Dación en Pago", Tooltip: "Anexo que formaliza el colateral social"},
	}

	if c.SaleType == SaleFinanciero {
		docs = append(docs, docKYC)
	}
	docs = append(docs, incomeDocument(c))

	return Result{
		Documents: docs,
		Metadata: Metadata{
			OCRThreshold: DefaultOCRThreshold,
			ExpiryRules:  maps.Clone(individualExpiryRules),
			Protection:   individualProtection(),
			Income:       &IncomePolicy{Threshold: 0.38, DocumentID: "doc-income"},
		},
	}
}

// CollectiveMemberCount clamps a requested group size to [1, MaxCollectiveMembers].
func CollectiveMemberCount(c Context) int {
	n := DefaultCollectiveSize
	if c.CollectiveSize != nil {
		n = *c.CollectiveSize
	}
	return max(min(n, MaxCollectiveMembers), 1)
}

func buildEdomexColectivo(c Context) Result {
	members := CollectiveMemberCount(c)

	docs := make([]Document, 0, 3+2*members)
	docs = append(docs, Document{
		ID:      "doc-consent",
		Label:   "Carta consentimiento colectivo",
		Tooltip: "Debe contener nombre del grupo, cuotas y firma responsable",
	})
	for i := 1; i <= members; i++ {
		docs = append(docs,
			Document{
				ID:      MemberINEID(i),
				Label:   fmt.Sprintf("Integrante %d: INE", i),
				Group:   "member",
				Tooltip: "INE vigente y legible de cada integrante",
			},
			Document{
				ID:      MemberRFCID(i),
				Label:   fmt.Sprintf("Integrante %d: RFC", i),
				Group:   "member",
				Tooltip: "RFC validado ante SAT por integrante",
			},
		)
	}
	docs = append(docs,
		Document{
			ID:       "doc-proof-leader",
			Label:    "Comprobante domicilio líder",
			Optional: true,
			Tooltip:  "Solo si el flujo requiere validar domicilio del líder",
		},
		Document{
			ID:       "doc-roster",
			Label:    "Lista de miembros firmada",
			Optional: true,
			Tooltip:  "Documento QA con firmas de todos los integrantes",
		},
	)

	return Result{
		Documents: docs,
		Metadata: Metadata{
			OCRThreshold: 0.80,
			ExpiryRules:  map[string]string{"doc-ine-*": "vigencia >= 90d"},
			Protection: &ProtectionPolicy{
				Required:              true,
				CoverageOptions:       []CoverageType{CoverageGroup},
				DefaultCoverage:       CoverageGroup,
				SimulateEndpoint:      "/v1/protection/simulate",
				ApplyEndpoint:         "/v1/protection/apply",
				ScoreEndpoint:         "/v1/health/score",
				FallbackScoreEndpoint: "/v1/health/cache",
			},
			Tanda: &TandaRules{
				MinMembers:         5,
				MaxMembers:         MaxCollectiveMembers,
				MinContribution:    500,
				MaxContribution:    3500,
				MinRounds:          5,
				MaxRounds:          24,
				ValidationEndpoint: "/v1/tanda/validate",
				ScheduleEndpoint:   "/v1/tanda/schedule",
			},
		},
	}
}

func buildFallback(Context) Result {
	return Result{
		Documents: []Document{
			{ID: "doc-ine", Label: "INE anverso/reverso"},
			{ID: "doc-proof", Label: "Comprobante de domicilio"},
		},
		Metadata: Metadata{
			OCRThreshold: DefaultOCRThreshold,
			Protection: &ProtectionPolicy{
				Required:         false,
				CoverageOptions:  []CoverageType{CoverageStandard},
				DefaultCoverage:  CoverageStandard,
				SimulateEndpoint: "/v1/protection/simulate",
				ApplyEndpoint:    "/v1/protection/apply",
			},
		},
	}
}

// staticBuilder serves a registered entry, copying on every call.
func staticBuilder(docs []Document, meta Metadata) Builder {
	docs = append([]Document{}, docs...)
	meta = meta.Clone()
	return func(Context) Result {
		return Result{Documents: append([]Document{}, docs...), Metadata: meta.Clone()}
	}
}

// MemberINEID is the INE document id for the 1-based member index.
func MemberINEID(i int) string { return fmt.Sprintf("doc-ine-%d", i) }

// MemberRFCID is the RFC document id for the 1-based member index.
func MemberRFCID(i int) string { return fmt.Sprintf("doc-rfc-%d", i) }
