package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ContextFile holds the schema definition for the ContextFile entity.
type ContextFile struct {
	ent.Schema
}

// Fields of the ContextFile.
func (ContextFile) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("threat_model_id").
			NotEmpty(),
		field.String("file_name").
			NotEmpty(),
		field.String("mime_type").
			NotEmpty(),
		field.String("storage_key").
			NotEmpty(),
		field.String("tag").
			Default("other"),
	}
}

// Edges of the ContextFile.
func (ContextFile) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("threat_model", ThreatModel.Type).
			Ref("files").
			Unique(),
	}
}

// Indexes of the ContextFile.
func (ContextFile) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("threat_model_id", "storage_key").Unique(),
	}
}
