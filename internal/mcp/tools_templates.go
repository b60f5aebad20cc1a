package mcp

import (
	"context"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/tasklattice/tasklattice/internal/templates"
	"github.com/tasklattice/tasklattice/internal/types"
)

func (s *Server) registerTemplates() {
	s.add(mcpgo.NewTool("create_template",
		mcpgo.WithDescription("Create a template, optionally with tasks"),
		mcpgo.WithString("name", mcpgo.Required(), mcpgo.Description("Template name")),
		mcpgo.WithString("description", mcpgo.Description("Description")),
		mcpgo.WithString("category", mcpgo.Description("Category used for filtering")),
		mcpgo.WithString("version", mcpgo.Description("Semantic version, default 1.0.0")),
		mcpgo.WithArray("tasks",
			mcpgo.Description("Tasks in order: objects with title, description, priority, estimated_hours"),
			mcpgo.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":           map[string]any{"type": "string"},
					"description":     map[string]any{"type": "string"},
					"priority":        map[string]any{"type": "string"},
					"estimated_hours": map[string]any{"type": "number"},
				},
				"required": []string{"title"},
			})),
	), s.createTemplate)

	s.add(mcpgo.NewTool("create_template_from_list",
		mcpgo.WithDescription("Derive a template from the live tasks of a list. Status, dates, tags and attributes are dropped"),
		idParam("list_id", "Source list id"),
		mcpgo.WithString("name", mcpgo.Required(), mcpgo.Description("Template name")),
		mcpgo.WithString("description", mcpgo.Description("Description")),
		mcpgo.WithString("category", mcpgo.Description("Category")),
	), s.createTemplateFromList)

	s.add(mcpgo.NewTool("add_template_task",
		mcpgo.WithDescription("Append a task to a template"),
		idParam("template_id", "Template id"),
		mcpgo.WithString("title", mcpgo.Required(), mcpgo.Description("Task title, may contain {{placeholders}}")),
		mcpgo.WithString("description", mcpgo.Description("Task description")),
		mcpgo.WithString("priority", mcpgo.Description(priorityDesc)),
		mcpgo.WithNumber("estimated_hours", mcpgo.Description("Estimate in hours")),
	), s.addTemplateTask)

	s.add(mcpgo.NewTool("get_template",
		mcpgo.WithDescription("Get a template with its tasks and placeholder names"),
		idParam("id", "Template id"),
		readOnly(),
	), s.getTemplate)

	s.add(mcpgo.NewTool("list_templates",
		mcpgo.WithDescription("List live templates without their tasks"),
		mcpgo.WithString("category", mcpgo.Description("Only templates in this category")),
		readOnly(),
	), s.listTemplates)

	s.add(mcpgo.NewTool("apply_template",
		mcpgo.WithDescription("Create a new list from a template. Every task starts pending; {{token}} placeholders are filled from params and unknown tokens are kept"),
		idParam("template_id", "Template id"),
		mcpgo.WithString("list_name", mcpgo.Required(), mcpgo.Description("Name of the new list")),
		mcpgo.WithString("list_description", mcpgo.Description("Description of the new list")),
		mcpgo.WithNumber("parent_list_id", mcpgo.Description("Parent of the new list")),
		mcpgo.WithObject("params", mcpgo.Description("Placeholder values keyed by token")),
	), s.applyTemplate)

	s.add(mcpgo.NewTool("delete_template",
		mcpgo.WithDescription("Soft-delete a template. Lists created from it are unaffected"),
		idParam("id", "Template id"),
		mcpgo.WithDestructiveHintAnnotation(true),
	), s.deleteTemplate)
}

func (s *Server) createTemplate(ctx context.Context, a args) (any, error) {
	var (
		in  templates.TemplateInput
		err error
	)
	if in.Name, err = a.requireStr("name"); err != nil {
		return nil, err
	}
	if in.Description, err = a.str("description"); err != nil {
		return nil, err
	}
	if in.Category, err = a.str("category"); err != nil {
		return nil, err
	}
	if in.Version, err = a.str("version"); err != nil {
		return nil, err
	}
	if a.has("tasks") {
		raw, isList := a.m["tasks"].([]any)
		if !isList {
			return nil, types.Validationf("tasks must be an array")
		}
		for i, item := range raw {
			obj, isObj := item.(map[string]any)
			if !isObj {
				return nil, types.Validationf("tasks[%d] must be an object", i)
			}
			tt, err := templateTask(args{m: obj, dates: a.dates})
			if err != nil {
				return nil, types.Validationf("tasks[%d]: %s", i, types.MessageOf(err))
			}
			in.Tasks = append(in.Tasks, tt)
		}
	}
	return s.app.Templates.CreateTemplate(ctx, in)
}

func templateTask(a args) (types.TemplateTask, error) {
	var (
		tt  types.TemplateTask
		err error
	)
	if tt.Title, err = a.requireStr("title"); err != nil {
		return tt, err
	}
	if tt.Description, err = a.str("description"); err != nil {
		return tt, err
	}
	pr, err := a.priority("priority")
	if err != nil {
		return tt, err
	}
	if pr != nil {
		tt.Priority = *pr
	}
	tt.EstimatedHours, err = a.optFloat("estimated_hours")
	return tt, err
}

func (s *Server) createTemplateFromList(ctx context.Context, a args) (any, error) {
	listID, err := a.id("list_id")
	if err != nil {
		return nil, err
	}
	name, err := a.requireStr("name")
	if err != nil {
		return nil, err
	}
	desc, err := a.str("description")
	if err != nil {
		return nil, err
	}
	category, err := a.str("category")
	if err != nil {
		return nil, err
	}
	return s.app.Templates.CreateTemplateFromList(ctx, listID, name, desc, category)
}

func (s *Server) addTemplateTask(ctx context.Context, a args) (any, error) {
	id, err := a.id("template_id")
	if err != nil {
		return nil, err
	}
	tt, err := templateTask(a)
	if err != nil {
		return nil, err
	}
	return s.app.Templates.AddTemplateTask(ctx, id, tt)
}

// templateView adds the placeholder tokens a caller can fill.
type templateView struct {
	*types.Template
	Placeholders []string `json:"placeholders"`
}

func (s *Server) getTemplate(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	tpl, err := s.app.Templates.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	var texts []string
	for _, tt := range tpl.Tasks {
		texts = append(texts, tt.Title, tt.Description)
	}
	tokens := templates.Placeholders(texts...)
	if tokens == nil {
		tokens = []string{}
	}
	return templateView{Template: tpl, Placeholders: tokens}, nil
}

func (s *Server) listTemplates(ctx context.Context, a args) (any, error) {
	category, err := a.str("category")
	if err != nil {
		return nil, err
	}
	out, err := s.app.Templates.ListTemplates(ctx, category)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*types.Template{}
	}
	return out, nil
}

func (s *Server) applyTemplate(ctx context.Context, a args) (any, error) {
	id, err := a.id("template_id")
	if err != nil {
		return nil, err
	}
	var opts templates.ApplyOptions
	if opts.ListName, err = a.requireStr("list_name"); err != nil {
		return nil, err
	}
	if opts.ListDescription, err = a.str("list_description"); err != nil {
		return nil, err
	}
	if opts.ParentID, err = a.optID("parent_list_id"); err != nil {
		return nil, err
	}
	if opts.Params, err = a.strMap("params"); err != nil {
		return nil, err
	}
	return s.app.Templates.ApplyTemplate(ctx, id, opts)
}

func (s *Server) deleteTemplate(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	deleted, err := s.app.Templates.DeleteTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	return ok("deleted", deleted), nil
}
