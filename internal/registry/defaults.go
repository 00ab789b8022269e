// Package registry loads the extractable-field catalog from its supported
// sources: the built-in defaults, a YAML/JSON file, an XLSX workbook, or a
// Notion database.
package registry

import "github.com/meridian-legal/evidence-cli/internal/model"

// DefaultCatalog returns the built-in contract-review field catalog. It is
// used when no catalog source is configured and as the seed for `catalog push`.
func DefaultCatalog() *model.FieldCatalog {
	return model.NewFieldCatalog([]model.FieldDef{
		{
			Key:     "document_title",
			Name:    "Document Title",
			Type:    model.FieldText,
			Prompt:  "What is the official title of this document?",
			SFField: "Contract_Title__c",
			Status:  "active",
		},
		{
			Key:      "parties_entities",
			Name:     "Parties / Entities",
			Type:     model.FieldList,
			Prompt:   "Which legal entities are parties to this agreement?",
			Synonyms: []string{"party", "entity", "entities", "company", "counterparty"},
			SFField:  "Contract_Parties__c",
			Status:   "active",
		},
		{
			Key:      "effective_date_term",
			Name:     "Effective Date",
			Type:     model.FieldDate,
			Prompt:   "What is the effective date of this agreement?",
			Synonyms: []string{"effective date", "commencement date", "start date"},
			SFField:  "Effective_Date__c",
			Status:   "active",
		},
		{
			Key:      "governing_law",
			Name:     "Governing Law",
			Type:     model.FieldText,
			Prompt:   "Which jurisdiction's laws govern this agreement?",
			Synonyms: []string{"governing law", "jurisdiction", "venue", "applicable law"},
			SFField:  "Governing_Law__c",
			Status:   "active",
		},
		{
			Key:      "termination_rights",
			Name:     "Termination Rights",
			Type:     model.FieldText,
			Prompt:   "Under what conditions may a party terminate this agreement?",
			Synonyms: []string{"expire", "cancel", "termination for cause", "termination for convenience"},
			SFField:  "Termination_Rights__c",
			Status:   "active",
		},
		{
			Key:      "indemnification",
			Name:     "Indemnification",
			Type:     model.FieldText,
			Prompt:   "What indemnification obligations does this agreement impose, and on whom?",
			Synonyms: []string{"indemnify", "hold harmless", "defend"},
			SFField:  "Indemnification__c",
			Status:   "active",
		},
		{
			Key:      "limitation_of_liability",
			Name:     "Limitation of Liability",
			Type:     model.FieldText,
			Prompt:   "How does this agreement cap or limit each party's liability?",
			Synonyms: []string{"liability cap", "damages", "consequential damages", "aggregate liability"},
			SFField:  "Liability_Cap__c",
			Status:   "active",
		},
		{
			Key:      "confidentiality_exceptions",
			Name:     "Confidentiality Exceptions",
			Type:     model.FieldList,
			Prompt:   "What exceptions to the confidentiality obligations does this agreement allow?",
			Synonyms: []string{"publicly available", "required by law", "independently developed", "prior possession"},
			SFField:  "Confidentiality_Exceptions__c",
			Status:   "active",
		},
		{
			Key:      "assignment_change_of_control",
			Name:     "Assignment / Change of Control",
			Type:     model.FieldText,
			Prompt:   "May this agreement be assigned, and what happens on a change of control?",
			Synonyms: []string{"assign", "transfer", "successor", "change of control", "merger"},
			SFField:  "Assignment_Terms__c",
			Status:   "active",
		},
		{
			Key:      "notice_requirements",
			Name:     "Notice Requirements",
			Type:     model.FieldText,
			Prompt:   "How must formal notices be delivered under this agreement?",
			Synonyms: []string{"written notice", "notice period", "notification", "delivery notice"},
			SFField:  "Notice_Requirements__c",
			Status:   "active",
		},
		{
			Key:      "payment_obligations",
			Name:     "Payment Obligations",
			Type:     model.FieldText,
			Prompt:   "What payment obligations and payment terms does this agreement specify?",
			Synonyms: []string{"fees", "amount due", "invoice", "payment terms"},
			SFField:  "Payment_Terms__c",
			Status:   "active",
		},
		{
			Key:      "dispute_resolution",
			Name:     "Dispute Resolution",
			Type:     model.FieldText,
			Prompt:   "How are disputes under this agreement resolved?",
			Synonyms: []string{"arbitration", "mediation", "exclusive jurisdiction", "waiver of jury trial"},
			SFField:  "Dispute_Resolution__c",
			Status:   "active",
		},
	})
}
