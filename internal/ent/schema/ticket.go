package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Ticket holds the schema definition for the Ticket entity, a
// denormalized snapshot of an imported issue.
type Ticket struct {
	ent.Schema
}

// Fields of the Ticket.
func (Ticket) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("threat_model_id").
			NotEmpty(),
		field.String("key").
			NotEmpty(),
		field.JSON("payload", map[string]any{}).
			Optional(),
	}
}

// Edges of the Ticket.
func (Ticket) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("threat_model", ThreatModel.Type).
			Ref("tickets").
			Unique(),
	}
}

// Indexes of the Ticket.
func (Ticket) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("threat_model_id", "key").Unique(),
	}
}
