package mcp

import (
	"context"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/tasklattice/tasklattice/internal/attributes"
	"github.com/tasklattice/tasklattice/internal/types"
)

const attrTypeDesc = "text, integer, decimal, date, datetime, boolean, single_choice, multiple_choice, url or file_reference"

func (s *Server) registerAttributes() {
	s.add(mcpgo.NewTool("create_attribute_definition",
		mcpgo.WithDescription("Declare a typed custom attribute for tasks and lists"),
		mcpgo.WithString("name", mcpgo.Required(), mcpgo.Description("Attribute name, unique ignoring case")),
		mcpgo.WithString("type", mcpgo.Required(), mcpgo.Description(attrTypeDesc)),
		mcpgo.WithBoolean("is_required", mcpgo.Description("Reject empty values")),
		mcpgo.WithString("default_value", mcpgo.Description("Value used when a set call passes an empty value for an optional attribute")),
		mcpgo.WithObject("validation_rules", mcpgo.Description("Type-specific rules, e.g. {\"choices\":[\"Low\",\"High\"]} or {\"min\":1,\"max\":5}")),
	), s.createDefinition)

	s.add(mcpgo.NewTool("get_attribute_definition",
		mcpgo.WithDescription("Get an attribute definition by id or name"),
		mcpgo.WithNumber("id", mcpgo.Description("Definition id")),
		mcpgo.WithString("name", mcpgo.Description("Definition name, used when id is omitted")),
		readOnly(),
	), s.getDefinition)

	s.add(mcpgo.NewTool("list_attribute_definitions",
		mcpgo.WithDescription("List every attribute definition"),
		readOnly(),
	), s.listDefinitions)

	s.add(mcpgo.NewTool("delete_attribute_definition",
		mcpgo.WithDescription("Delete a definition and every value stored for it"),
		idParam("id", "Definition id"),
		mcpgo.WithDestructiveHintAnnotation(true),
	), s.deleteDefinition)

	for _, t := range []struct {
		target attributes.Target
		noun   string
	}{{attributes.TaskTarget, "task"}, {attributes.ListTarget, "list"}} {
		target, key := t.target, t.noun+"_id"
		s.add(mcpgo.NewTool("set_"+t.noun+"_attribute",
			mcpgo.WithDescription("Set an attribute value on a "+t.noun+". The value is validated against the definition"),
			idParam(key, "The "+t.noun+" id"),
			mcpgo.WithNumber("attribute_definition_id", mcpgo.Description("Definition id")),
			mcpgo.WithString("attribute_name", mcpgo.Description("Definition name, used when the id is omitted")),
			mcpgo.WithString("value", mcpgo.Required(), mcpgo.Description("String-encoded value")),
		), func(ctx context.Context, a args) (any, error) {
			entityID, err := a.id(key)
			if err != nil {
				return nil, err
			}
			defID, err := s.definitionID(ctx, a)
			if err != nil {
				return nil, err
			}
			value, err := a.requireStr("value")
			if err != nil {
				return nil, err
			}
			val, err := s.app.Attributes.Set(ctx, target, entityID, defID, value)
			if err != nil {
				return nil, err
			}
			return struct {
				Value *types.AttributeValue `json:"value"`
			}{val}, nil
		})

		s.add(mcpgo.NewTool("get_"+t.noun+"_attributes",
			mcpgo.WithDescription("List the attribute values of a "+t.noun),
			idParam(key, "The "+t.noun+" id"),
			readOnly(),
		), func(ctx context.Context, a args) (any, error) {
			entityID, err := a.id(key)
			if err != nil {
				return nil, err
			}
			out, err := s.app.Attributes.Values(ctx, target, entityID)
			if err != nil {
				return nil, err
			}
			if out == nil {
				out = []*types.AttributeValue{}
			}
			return out, nil
		})

		s.add(mcpgo.NewTool("remove_"+t.noun+"_attribute",
			mcpgo.WithDescription("Remove an attribute value from a "+t.noun),
			idParam(key, "The "+t.noun+" id"),
			mcpgo.WithNumber("attribute_definition_id", mcpgo.Description("Definition id")),
			mcpgo.WithString("attribute_name", mcpgo.Description("Definition name, used when the id is omitted")),
		), func(ctx context.Context, a args) (any, error) {
			entityID, err := a.id(key)
			if err != nil {
				return nil, err
			}
			defID, err := s.definitionID(ctx, a)
			if err != nil {
				return nil, err
			}
			removed, err := s.app.Attributes.Remove(ctx, target, entityID, defID)
			if err != nil {
				return nil, err
			}
			return ok("removed", removed), nil
		})
	}
}

// definitionID resolves attribute_definition_id, falling back to
// attribute_name.
func (s *Server) definitionID(ctx context.Context, a args) (int64, error) {
	if a.has("attribute_definition_id") {
		return a.id("attribute_definition_id")
	}
	name, err := a.str("attribute_name")
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(name) == "" {
		return 0, types.Validationf("attribute_definition_id or attribute_name is required")
	}
	def, err := s.app.Attributes.GetDefinitionByName(ctx, name)
	if err != nil {
		return 0, err
	}
	return def.ID, nil
}

func (s *Server) createDefinition(ctx context.Context, a args) (any, error) {
	var (
		in  attributes.DefinitionInput
		err error
	)
	if in.Name, err = a.requireStr("name"); err != nil {
		return nil, err
	}
	typ, err := a.requireStr("type")
	if err != nil {
		return nil, err
	}
	if in.Type, err = types.ParseAttributeType(typ); err != nil {
		return nil, err
	}
	if in.IsRequired, err = a.boolean("is_required"); err != nil {
		return nil, err
	}
	if in.DefaultValue, err = a.str("default_value"); err != nil {
		return nil, err
	}
	if in.ValidationRules, err = a.rawJSON("validation_rules"); err != nil {
		return nil, err
	}
	return s.app.Attributes.CreateAttributeDefinition(ctx, in)
}

func (s *Server) getDefinition(ctx context.Context, a args) (any, error) {
	if a.has("id") {
		id, err := a.id("id")
		if err != nil {
			return nil, err
		}
		return s.app.Attributes.GetDefinition(ctx, id)
	}
	name, err := a.str("name")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, types.Validationf("id or name is required")
	}
	return s.app.Attributes.GetDefinitionByName(ctx, name)
}

func (s *Server) listDefinitions(ctx context.Context, _ args) (any, error) {
	out, err := s.app.Attributes.ListDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*types.AttributeDefinition{}
	}
	return out, nil
}

func (s *Server) deleteDefinition(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	deleted, err := s.app.Attributes.DeleteAttributeDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	return ok("deleted", deleted), nil
}
