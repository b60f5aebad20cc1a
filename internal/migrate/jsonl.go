// Package migrate exports the store as typed JSONL records and imports such
// a file back through the domain components.
//
// Every line is one record:
//
//	{"type":"list","data":{"id":1,"name":"Home",...}}
//
// Ids in a file are only meaningful inside that file. Import assigns fresh
// ids and remaps every reference, creating parents before children.
package migrate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/tasklattice/tasklattice/internal/attributes"
	"github.com/tasklattice/tasklattice/internal/lists"
	"github.com/tasklattice/tasklattice/internal/logging"
	"github.com/tasklattice/tasklattice/internal/tags"
	"github.com/tasklattice/tasklattice/internal/tasks"
	"github.com/tasklattice/tasklattice/internal/templates"
	"github.com/tasklattice/tasklattice/internal/types"
)

// RecordType names the payload of a record.
type RecordType string

const (
	RecordList          RecordType = "list"
	RecordTask          RecordType = "task"
	RecordTag           RecordType = "tag"
	RecordTemplate      RecordType = "template"
	RecordAttribute     RecordType = "attribute"
	RecordTaskTag       RecordType = "task_tag"
	RecordListTag       RecordType = "list_tag"
	RecordTaskAttribute RecordType = "task_attribute"
	RecordListAttribute RecordType = "list_attribute"
)

// Record is one JSONL line.
type Record struct {
	Type RecordType      `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TagLink associates a tag with a task or list by file id.
type TagLink struct {
	EntityID int64 `json:"entity_id"`
	TagID    int64 `json:"tag_id"`
}

// Components are the domain managers used for export and import.
type Components struct {
	Lists      *lists.Manager
	Tasks      *tasks.Manager
	Tags       *tags.Manager
	Attributes *attributes.Manager
	Templates  *templates.Engine
	Log        logrus.FieldLogger
}

// Result counts what was written or restored.
type Result struct {
	Lists        int      `json:"lists"`
	Tasks        int      `json:"tasks"`
	Tags         int      `json:"tags"`
	Templates    int      `json:"templates"`
	Attributes   int      `json:"attributes"`
	Associations int      `json:"associations"`
	Values       int      `json:"values"`
	Errors       []string `json:"errors,omitempty"`
}

func (r *Result) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// maxLine bounds one record; template records with many tasks are the largest.
const maxLine = 16 << 20

// ReadRecords parses a JSONL stream. Blank lines are skipped.
func ReadRecords(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	var out []Record
	line := 0
	for sc.Scan() {
		line++
		data := sc.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, types.Validationf("invalid JSON at line %d: %v", line, err)
		}
		if !rec.Type.known() {
			return nil, types.Validationf("unknown record type %q at line %d", rec.Type, line)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSONL: %w", err)
	}
	return out, nil
}

func (t RecordType) known() bool {
	switch t {
	case RecordList, RecordTask, RecordTag, RecordTemplate, RecordAttribute,
		RecordTaskTag, RecordListTag, RecordTaskAttribute, RecordListAttribute:
		return true
	}
	return false
}

// Export writes every live entity as records. Lists and tags are written
// parents first.
func Export(ctx context.Context, c Components, w io.Writer) (*Result, error) {
	res := &Result{}
	enc := json.NewEncoder(w)
	emit := func(t RecordType, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", t, err)
		}
		return enc.Encode(Record{Type: t, Data: data})
	}

	all, err := c.Lists.ListAll(ctx, false)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Depth != all[j].Depth {
			return all[i].Depth < all[j].Depth
		}
		return all[i].ID < all[j].ID
	})
	for _, l := range all {
		if err := emit(RecordList, l); err != nil {
			return nil, err
		}
		res.Lists++
	}

	allTags, err := c.Tags.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(allTags, func(i, j int) bool {
		if allTags[i].Depth != allTags[j].Depth {
			return allTags[i].Depth < allTags[j].Depth
		}
		return allTags[i].ID < allTags[j].ID
	})
	for _, g := range allTags {
		if err := emit(RecordTag, g); err != nil {
			return nil, err
		}
		res.Tags++
	}

	defs, err := c.Attributes.ListDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		if err := emit(RecordAttribute, d); err != nil {
			return nil, err
		}
		res.Attributes++
	}

	allTasks, err := c.Tasks.ListTasks(ctx, tasks.TaskQuery{OldestFirst: true})
	if err != nil {
		return nil, err
	}
	for _, t := range allTasks {
		if err := emit(RecordTask, t); err != nil {
			return nil, err
		}
		res.Tasks++
	}

	tpls, err := c.Templates.ListTemplates(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, summary := range tpls {
		tpl, err := c.Templates.GetTemplate(ctx, summary.ID)
		if err != nil {
			return nil, err
		}
		if err := emit(RecordTemplate, tpl); err != nil {
			return nil, err
		}
		res.Templates++
	}

	for _, t := range allTasks {
		ts, err := c.Tags.TagsForTask(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		for _, g := range ts {
			if err := emit(RecordTaskTag, TagLink{EntityID: t.ID, TagID: g.ID}); err != nil {
				return nil, err
			}
			res.Associations++
		}
		vals, err := c.Attributes.GetTaskAttributes(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			if err := emit(RecordTaskAttribute, v); err != nil {
				return nil, err
			}
			res.Values++
		}
	}
	for _, l := range all {
		ls, err := c.Tags.TagsForList(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		for _, g := range ls {
			if err := emit(RecordListTag, TagLink{EntityID: l.ID, TagID: g.ID}); err != nil {
				return nil, err
			}
			res.Associations++
		}
		vals, err := c.Attributes.GetListAttributes(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			if err := emit(RecordListAttribute, v); err != nil {
				return nil, err
			}
			res.Values++
		}
	}
	return res, nil
}

// ExportFile writes the export to path through a temporary file.
func ExportFile(ctx context.Context, c Components, path string) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	bw := bufio.NewWriter(f)
	res, err := Export(ctx, c, bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return res, nil
}

// ImportFile imports the records in path.
func ImportFile(ctx context.Context, c Components, path string) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer f.Close()
	return Import(ctx, c, f)
}

// Import replays records through the domain components. A record that
// fails validation or references an unknown id is skipped and reported in
// Result.Errors; a malformed file fails before anything is written.
func Import(ctx context.Context, c Components, r io.Reader) (*Result, error) {
	recs, err := ReadRecords(r)
	if err != nil {
		return nil, err
	}
	log := logging.OrNop(c.Log)
	res := &Result{}

	var (
		fileLists []*types.TaskList
		fileTags  []*types.Tag
		fileDefs  []*types.AttributeDefinition
		fileTasks []*types.Task
		fileTpls  []*types.Template
		taskTags  []*TagLink
		listTags  []*TagLink
		taskVals  []*types.AttributeValue
		listVals  []*types.AttributeValue
	)
	for i, rec := range recs {
		var dst any
		switch rec.Type {
		case RecordList:
			v := &types.TaskList{}
			fileLists, dst = append(fileLists, v), v
		case RecordTag:
			v := &types.Tag{}
			fileTags, dst = append(fileTags, v), v
		case RecordAttribute:
			v := &types.AttributeDefinition{}
			fileDefs, dst = append(fileDefs, v), v
		case RecordTask:
			v := &types.Task{}
			fileTasks, dst = append(fileTasks, v), v
		case RecordTemplate:
			v := &types.Template{}
			fileTpls, dst = append(fileTpls, v), v
		case RecordTaskTag:
			v := &TagLink{}
			taskTags, dst = append(taskTags, v), v
		case RecordListTag:
			v := &TagLink{}
			listTags, dst = append(listTags, v), v
		case RecordTaskAttribute:
			v := &types.AttributeValue{}
			taskVals, dst = append(taskVals, v), v
		case RecordListAttribute:
			v := &types.AttributeValue{}
			listVals, dst = append(listVals, v), v
		}
		if err := json.Unmarshal(rec.Data, dst); err != nil {
			return nil, types.Validationf("invalid %s record %d: %v", rec.Type, i+1, err)
		}
	}

	listIDs := make(map[int64]int64, len(fileLists))
	pending := fileLists
	for len(pending) > 0 {
		var next []*types.TaskList
		for _, l := range pending {
			in := lists.ListInput{Name: l.Name, Description: l.Description}
			if l.ParentID != nil {
				parent, ok := listIDs[*l.ParentID]
				if !ok {
					next = append(next, l)
					continue
				}
				in.ParentID = &parent
			}
			created, err := c.Lists.CreateList(ctx, in)
			if err != nil {
				res.fail("list %d: %v", l.ID, err)
				continue
			}
			listIDs[l.ID] = created.ID
			res.Lists++
		}
		if len(next) == len(pending) {
			for _, l := range next {
				res.fail("list %d: parent %d is not in the file", l.ID, *l.ParentID)
			}
			break
		}
		pending = next
	}

	tagIDs := make(map[int64]int64, len(fileTags))
	pendingTags := fileTags
	for len(pendingTags) > 0 {
		var next []*types.Tag
		for _, g := range pendingTags {
			in := tags.TagInput{Name: g.Name, Color: g.Color}
			if g.ParentID != nil {
				parent, ok := tagIDs[*g.ParentID]
				if !ok {
					next = append(next, g)
					continue
				}
				in.ParentID = &parent
			}
			created, err := c.Tags.CreateTag(ctx, in)
			if err != nil {
				res.fail("tag %d: %v", g.ID, err)
				continue
			}
			tagIDs[g.ID] = created.ID
			res.Tags++
		}
		if len(next) == len(pendingTags) {
			for _, g := range next {
				res.fail("tag %d: parent %d is not in the file", g.ID, *g.ParentID)
			}
			break
		}
		pendingTags = next
	}

	defIDs := make(map[int64]int64, len(fileDefs))
	for _, d := range fileDefs {
		created, err := c.Attributes.CreateAttributeDefinition(ctx, attributes.DefinitionInput{
			Name:            d.Name,
			Type:            d.Type,
			IsRequired:      d.IsRequired,
			DefaultValue:    d.DefaultValue,
			ValidationRules: d.ValidationRules,
		})
		if err != nil {
			res.fail("attribute %d: %v", d.ID, err)
			continue
		}
		defIDs[d.ID] = created.ID
		res.Attributes++
	}

	taskIDs := make(map[int64]int64, len(fileTasks))
	for _, t := range fileTasks {
		in := tasks.TaskInput{
			Title:          t.Title,
			Description:    t.Description,
			Notes:          t.Notes,
			Status:         t.Status,
			Priority:       t.Priority,
			DueDate:        t.DueDate,
			EstimatedHours: t.EstimatedHours,
		}
		if t.ListID != nil {
			id, ok := listIDs[*t.ListID]
			if !ok {
				res.fail("task %d: list %d was not imported", t.ID, *t.ListID)
				continue
			}
			in.ListID = &id
		}
		created, err := c.Tasks.Restore(ctx, in)
		if err != nil {
			res.fail("task %d: %v", t.ID, err)
			continue
		}
		taskIDs[t.ID] = created.ID
		res.Tasks++
	}

	for _, tpl := range fileTpls {
		in := templates.TemplateInput{Name: tpl.Name, Description: tpl.Description, Category: tpl.Category, Version: tpl.Version}
		for _, tt := range tpl.Tasks {
			in.Tasks = append(in.Tasks, types.TemplateTask{Title: tt.Title, Description: tt.Description, Priority: tt.Priority, EstimatedHours: tt.EstimatedHours})
		}
		if _, err := c.Templates.CreateTemplate(ctx, in); err != nil {
			res.fail("template %d: %v", tpl.ID, err)
			continue
		}
		res.Templates++
	}

	link := func(kind string, links []*TagLink, ids map[int64]int64, add func(context.Context, int64, int64) (bool, error)) {
		for _, ln := range links {
			entity, ok := ids[ln.EntityID]
			tag, tok := tagIDs[ln.TagID]
			if !ok || !tok {
				res.fail("%s tag %d/%d: referenced rows were not imported", kind, ln.EntityID, ln.TagID)
				continue
			}
			if _, err := add(ctx, entity, tag); err != nil {
				res.fail("%s tag %d/%d: %v", kind, ln.EntityID, ln.TagID, err)
				continue
			}
			res.Associations++
		}
	}
	link("task", taskTags, taskIDs, c.Tags.AddTagToTask)
	link("list", listTags, listIDs, c.Tags.AddTagToList)

	setValues := func(kind string, vals []*types.AttributeValue, ids map[int64]int64, set func(context.Context, int64, int64, string) (*types.AttributeValue, error)) {
		for _, v := range vals {
			entity, ok := ids[v.EntityID]
			def, dok := defIDs[v.DefinitionID]
			if !ok || !dok {
				res.fail("%s attribute %d/%d: referenced rows were not imported", kind, v.EntityID, v.DefinitionID)
				continue
			}
			if _, err := set(ctx, entity, def, v.Value); err != nil {
				res.fail("%s attribute %d/%d: %v", kind, v.EntityID, v.DefinitionID, err)
				continue
			}
			res.Values++
		}
	}
	setValues("task", taskVals, taskIDs, c.Attributes.SetTaskAttribute)
	setValues("list", listVals, listIDs, c.Attributes.SetListAttribute)

	log.WithFields(logrus.Fields{
		"op":        "import",
		"lists":     res.Lists,
		"tasks":     res.Tasks,
		"tags":      res.Tags,
		"templates": res.Templates,
		"errors":    len(res.Errors),
	}).Info("import finished")
	return res, nil
}
