// Package mcp exposes the domain operations as MCP tools.
//
// Every tool takes flat named parameters and answers with a JSON document.
// Failures are tool errors whose text is
//
//	{"error":{"kind":"not_found","message":"list 7 not found"}}
//
// so callers can branch on kind without parsing messages.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/tasklattice/tasklattice/internal/app"
	"github.com/tasklattice/tasklattice/internal/logging"
	"github.com/tasklattice/tasklattice/internal/types"
)

// KindInternal marks failures that are not domain errors. Their message is
// not passed through.
const KindInternal types.Kind = "internal"

type handler func(ctx context.Context, a args) (any, error)

// Server owns the MCP server and the tool table.
type Server struct {
	app      *app.App
	srv      *server.MCPServer
	log      logrus.FieldLogger
	handlers map[string]server.ToolHandlerFunc
}

// New registers every tool against a.
func New(a *app.App, version string) *Server {
	s := &Server{
		app: a,
		srv: server.NewMCPServer("tasklattice", version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		log:      logging.OrNop(a.Log).WithField("component", "mcp"),
		handlers: map[string]server.ToolHandlerFunc{},
	}
	s.registerLists()
	s.registerTasks()
	s.registerTemplates()
	s.registerTags()
	s.registerAttributes()
	s.registerSearch()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.srv }

// Tools returns the registered tool names in order.
func (s *Server) Tools() []string {
	names := make([]string, 0, len(s.handlers))
	for n := range s.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Serve runs the stdio transport until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.srv)
	stdio.SetErrorLogger(log.New(logging.Writer(s.log), "", 0))
	s.log.WithField("tools", len(s.handlers)).Info("serving MCP on stdio")
	return stdio.Listen(ctx, in, out)
}

// Call invokes a tool directly.
func (s *Server) Call(ctx context.Context, name string, arguments map[string]any) (*mcpgo.CallToolResult, error) {
	h, ok := s.handlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments
	return h(ctx, req)
}

func (s *Server) add(tool mcpgo.Tool, h handler) {
	wrapped := s.wrap(tool.Name, h)
	s.handlers[tool.Name] = wrapped
	s.srv.AddTool(tool, wrapped)
}

func (s *Server) wrap(name string, h handler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		start := time.Now()
		entry := logging.WithRequestID(s.log, uuid.NewString()).WithField("tool", name)

		out, err := h(ctx, args{m: req.GetArguments(), dates: s.app.Dates})
		if err == nil {
			var data []byte
			if data, err = json.Marshal(out); err == nil {
				entry.WithField("duration", time.Since(start).String()).Debug("tool call")
				return mcpgo.NewToolResultText(string(data)), nil
			}
		}

		kind := types.KindOf(err)
		msg := types.MessageOf(err)
		if kind == "" {
			kind, msg = KindInternal, "internal error"
			entry.WithError(err).Error("tool call failed")
		} else {
			entry.WithFields(logrus.Fields{"kind": kind, "error": msg}).Info("tool call rejected")
		}
		return ErrorResult(kind, msg), nil
	}
}

// ErrorBody is the JSON document carried by failed tool calls.
type ErrorBody struct {
	Error struct {
		Kind    types.Kind `json:"kind"`
		Message string     `json:"message"`
	} `json:"error"`
}

// ErrorResult builds a tool error result.
func ErrorResult(kind types.Kind, msg string) *mcpgo.CallToolResult {
	var body ErrorBody
	body.Error.Kind = kind
	body.Error.Message = msg
	data, _ := json.Marshal(body)
	return mcpgo.NewToolResultError(string(data))
}

// readOnly marks a tool that changes nothing.
func readOnly() mcpgo.ToolOption {
	return mcpgo.WithReadOnlyHintAnnotation(true)
}

func idParam(name, desc string) mcpgo.ToolOption {
	return mcpgo.WithNumber(name, mcpgo.Required(), mcpgo.Description(desc))
}

func stringList(name, desc string) mcpgo.ToolOption {
	return mcpgo.WithArray(name, mcpgo.Description(desc), mcpgo.Items(map[string]any{"type": "string"}))
}

// ok wraps boolean outcomes such as deleted or added.
func ok(key string, v bool) map[string]bool {
	return map[string]bool{key: v}
}
