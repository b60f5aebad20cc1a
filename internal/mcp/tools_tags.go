package mcp

import (
	"context"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/tasklattice/tasklattice/internal/tags"
	"github.com/tasklattice/tasklattice/internal/types"
)

func (s *Server) registerTags() {
	s.add(mcpgo.NewTool("create_tag",
		mcpgo.WithDescription("Create a tag, optionally under a parent tag. Names are unique ignoring case"),
		mcpgo.WithString("name", mcpgo.Required(), mcpgo.Description("Tag name")),
		mcpgo.WithString("color", mcpgo.Description("Color in #RRGGBB form")),
		mcpgo.WithNumber("parent_id", mcpgo.Description("Parent tag id")),
	), s.createTag)

	s.add(mcpgo.NewTool("update_tag",
		mcpgo.WithDescription("Rename, recolor or re-parent a tag. Cycles are rejected"),
		idParam("id", "Tag id"),
		mcpgo.WithString("name", mcpgo.Description("New name")),
		mcpgo.WithString("color", mcpgo.Description("New color, empty to clear")),
		mcpgo.WithNumber("parent_id", mcpgo.Description("New parent tag id")),
		mcpgo.WithBoolean("clear_parent", mcpgo.Description("Make the tag a root")),
	), s.updateTag)

	s.add(mcpgo.NewTool("get_tag",
		mcpgo.WithDescription("Get a tag by id or name, with its path and depth"),
		mcpgo.WithNumber("id", mcpgo.Description("Tag id")),
		mcpgo.WithString("name", mcpgo.Description("Tag name, used when id is omitted")),
		readOnly(),
	), s.getTag)

	s.add(mcpgo.NewTool("list_tags",
		mcpgo.WithDescription("List every tag with its path"),
		readOnly(),
	), s.listTags)

	s.add(mcpgo.NewTool("delete_tag",
		mcpgo.WithDescription("Delete a tag and its associations. Child tags become roots"),
		idParam("id", "Tag id"),
		mcpgo.WithDestructiveHintAnnotation(true),
	), s.deleteTag)

	for _, t := range []struct {
		target tags.Target
		noun   string
	}{{tags.TaskTarget, "task"}, {tags.ListTarget, "list"}} {
		target, key := t.target, t.noun+"_id"
		s.add(mcpgo.NewTool("add_tag_to_"+t.noun,
			mcpgo.WithDescription("Tag a "+t.noun+". Adding an existing association is a no-op"),
			idParam(key, "The "+t.noun+" id"),
			idParam("tag_id", "Tag id"),
		), func(ctx context.Context, a args) (any, error) {
			entityID, tagID, err := pair(a, key, "tag_id")
			if err != nil {
				return nil, err
			}
			added, err := s.app.Tags.Add(ctx, target, entityID, tagID)
			if err != nil {
				return nil, err
			}
			return ok("added", added), nil
		})

		s.add(mcpgo.NewTool("remove_tag_from_"+t.noun,
			mcpgo.WithDescription("Remove a tag from a "+t.noun+". Returns removed=false when it was not attached"),
			idParam(key, "The "+t.noun+" id"),
			idParam("tag_id", "Tag id"),
		), func(ctx context.Context, a args) (any, error) {
			entityID, tagID, err := pair(a, key, "tag_id")
			if err != nil {
				return nil, err
			}
			removed, err := s.app.Tags.Remove(ctx, target, entityID, tagID)
			if err != nil {
				return nil, err
			}
			return ok("removed", removed), nil
		})

		s.add(mcpgo.NewTool("get_"+t.noun+"_tags",
			mcpgo.WithDescription("List the tags of a "+t.noun),
			idParam(key, "The "+t.noun+" id"),
			readOnly(),
		), func(ctx context.Context, a args) (any, error) {
			entityID, err := a.id(key)
			if err != nil {
				return nil, err
			}
			out, err := s.app.Tags.For(ctx, target, entityID)
			if err != nil {
				return nil, err
			}
			if out == nil {
				out = []*types.Tag{}
			}
			return out, nil
		})
	}
}

func pair(a args, first, second string) (int64, int64, error) {
	x, err := a.id(first)
	if err != nil {
		return 0, 0, err
	}
	y, err := a.id(second)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func (s *Server) createTag(ctx context.Context, a args) (any, error) {
	var (
		in  tags.TagInput
		err error
	)
	if in.Name, err = a.requireStr("name"); err != nil {
		return nil, err
	}
	if in.Color, err = a.str("color"); err != nil {
		return nil, err
	}
	if in.ParentID, err = a.optID("parent_id"); err != nil {
		return nil, err
	}
	return s.app.Tags.CreateTag(ctx, in)
}

func (s *Server) updateTag(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	var p tags.TagPatch
	if p.Name, err = a.optStr("name"); err != nil {
		return nil, err
	}
	if p.Color, err = a.optStr("color"); err != nil {
		return nil, err
	}
	if p.ParentID, err = a.optID("parent_id"); err != nil {
		return nil, err
	}
	if p.ClearParent, err = a.boolean("clear_parent"); err != nil {
		return nil, err
	}
	if p.ClearParent && p.ParentID != nil {
		return nil, types.Validationf("parent_id and clear_parent are exclusive")
	}
	return s.app.Tags.UpdateTag(ctx, id, p)
}

func (s *Server) getTag(ctx context.Context, a args) (any, error) {
	if a.has("id") {
		id, err := a.id("id")
		if err != nil {
			return nil, err
		}
		return s.app.Tags.GetTag(ctx, id)
	}
	name, err := a.str("name")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, types.Validationf("id or name is required")
	}
	return s.app.Tags.GetTagByName(ctx, name)
}

func (s *Server) listTags(ctx context.Context, _ args) (any, error) {
	out, err := s.app.Tags.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*types.Tag{}
	}
	return out, nil
}

func (s *Server) deleteTag(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	deleted, err := s.app.Tags.DeleteTag(ctx, id)
	if err != nil {
		return nil, err
	}
	return ok("deleted", deleted), nil
}
