package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// ThreatModel holds the schema definition for the ThreatModel entity.
type ThreatModel struct {
	ent.Schema
}

// Fields of the ThreatModel.
func (ThreatModel) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("threat_model_id").
			Unique().
			Immutable(),
		field.String("title").
			Default(""),
		field.Text("description").
			Default(""),
		field.Text("system_description").
			Default(""),
		field.JSON("questions", []map[string]string{}).
			Optional(),
		field.String("status").
			Default("draft"),
		field.JSON("threats", []map[string]any{}).
			Optional(),
		field.Text("summary").
			Default(""),
		field.JSON("recommendations", []string{}).
			Optional(),
		field.Time("generation_started").
			Optional().
			Nillable(),
		field.Time("generation_ended").
			Optional().
			Nillable(),
		field.String("generation_error").
			Default(""),
	}
}

// Edges of the ThreatModel.
func (ThreatModel) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("files", ContextFile.Type),
		edge.To("tickets", Ticket.Type),
	}
}
