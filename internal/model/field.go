package model

import "strings"

// FieldType is the value type a field normalizes to.
type FieldType string

const (
	FieldDate    FieldType = "date"
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldList    FieldType = "list"
)

// FieldDef is a catalog entry describing one extractable field.
type FieldDef struct {
	Key      string    `json:"key" yaml:"key"`
	Name     string    `json:"name" yaml:"name"`
	Type     FieldType `json:"type" yaml:"type"`
	Prompt   string    `json:"prompt" yaml:"prompt"`
	Synonyms []string  `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
	SFField  string    `json:"sf_field,omitempty" yaml:"sf_field,omitempty"`
	Status   string    `json:"status,omitempty" yaml:"status,omitempty"`
}

// FieldQuery is the read-only retrieval view of a field, derived once per run.
// Synonyms here are the catalog entry's own; the ranker layers the built-in
// legal synonym expansion on top.
type FieldQuery struct {
	Key      string    `json:"key"`
	Name     string    `json:"name"`
	Prompt   string    `json:"prompt"`
	Type     FieldType `json:"type"`
	Synonyms []string  `json:"synonyms,omitempty"`
}

// Query derives the retrieval view of the field definition.
func (f FieldDef) Query() FieldQuery {
	return FieldQuery{
		Key:      f.Key,
		Name:     f.Name,
		Prompt:   f.Prompt,
		Type:     f.Type,
		Synonyms: f.Synonyms,
	}
}

// QueryText is the text the ranker embeds and tokenizes for this field:
// name, prompt, and catalog synonyms joined into one probe string.
func (q FieldQuery) QueryText() string {
	parts := make([]string, 0, 2+len(q.Synonyms))
	if q.Name != "" {
		parts = append(parts, q.Name)
	}
	if q.Prompt != "" {
		parts = append(parts, q.Prompt)
	}
	parts = append(parts, q.Synonyms...)
	return strings.Join(parts, " ")
}

// FieldCatalog is an indexed collection of field definitions.
type FieldCatalog struct {
	Fields []FieldDef
	byKey  map[string]*FieldDef
}

// NewFieldCatalog indexes the given definitions. Entries with an empty key
// are dropped.
func NewFieldCatalog(fields []FieldDef) *FieldCatalog {
	c := &FieldCatalog{byKey: make(map[string]*FieldDef, len(fields))}
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		c.Fields = append(c.Fields, f)
	}
	for i := range c.Fields {
		c.byKey[c.Fields[i].Key] = &c.Fields[i]
	}
	return c
}

// ByKey returns the definition for key, or nil if absent.
func (c *FieldCatalog) ByKey(key string) *FieldDef {
	return c.byKey[key]
}

// Keys returns the catalog keys in declaration order.
func (c *FieldCatalog) Keys() []string {
	keys := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		keys[i] = f.Key
	}
	return keys
}
