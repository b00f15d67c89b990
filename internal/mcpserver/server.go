// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Raido board tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/boardservice"
	"github.com/starford/raido/internal/depgraph"
	"github.com/starford/raido/internal/history"
	"github.com/starford/raido/internal/pool"
	"github.com/starford/raido/internal/workspace"
)

// Server wraps the MCP server with Raido tools.
type Server struct {
	mcp      *server.MCPServer
	board    *boardservice.Service
	graph    *depgraph.Engine
	recorder *history.Recorder
	pool     *pool.Manager
	registry *workspace.Registry
}

// New creates a new MCP server with all Raido tools registered.
func New(board *boardservice.Service, graph *depgraph.Engine, recorder *history.Recorder, p *pool.Manager, registry *workspace.Registry) *Server {
	s := &Server{board: board, graph: graph, recorder: recorder, pool: p, registry: registry}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List all tasks in a project."),
		mcp.WithString("project", mcp.Description("Project id (empty for the default project)")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task. Status and priority MUST follow the board "+
			"workflow. Read the contract first via the get_workflow tool or the "+
			"raido://workflow resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("description", mcp.Description("Markdown task description")),
		mcp.WithString("status", mcp.Description("Initial status (defaults to the first workflow status)")),
		mcp.WithNumber("priority", mcp.Description("Priority level, 0 is highest")),
		mcp.WithString("epicId", mcp.Description("Epic to attach the task to")),
		mcp.WithString("project", mcp.Description("Project id (empty for the default project)")),
	), s.createTask)

	s.mcp.AddTool(mcp.NewTool("update_task_status",
		mcp.WithDescription("Move a task to a new workflow status."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id (e.g. TASK-12)")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status")),
		mcp.WithString("project", mcp.Description("Project id (empty for the default project)")),
	), s.updateTaskStatus)

	s.mcp.AddTool(mcp.NewTool("add_dependency",
		mcp.WithDescription("Declare that one task depends on another. The edge is "+
			"rejected if it would create a cycle."),
		mcp.WithString("taskId", mcp.Required(), mcp.Description("The dependent task")),
		mcp.WithString("dependsOnId", mcp.Required(), mcp.Description("The task it depends on")),
		mcp.WithString("project", mcp.Description("Project id (empty for the default project)")),
	), s.addDependency)

	s.mcp.AddTool(mcp.NewTool("task_history",
		mcp.WithDescription("Fetch the audit trail for an entity, newest first."),
		mcp.WithString("entityId", mcp.Description("Entity id to filter by (empty for all entities)")),
		mcp.WithString("project", mcp.Description("Project id (empty for the default project)")),
	), s.taskHistory)

	s.mcp.AddTool(mcp.NewTool("get_workflow",
		mcp.WithDescription("Returns the board workflow contract: legal statuses, "+
			"priority scale, and id conventions. Call this before creating or moving tasks."),
	), s.getWorkflow)

	// Resource: board workflow contract.
	s.mcp.AddResource(
		mcp.NewResource("raido://workflow", "Board Workflow Contract",
			mcp.WithResourceDescription("Statuses, priorities and id conventions that all tasks follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readWorkflowResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) projectID(req mcp.CallToolRequest) string {
	if p, err := req.RequireString("project"); err == nil && p != "" {
		return p
	}
	return s.registry.Default().ID
}

func (s *Server) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := s.board.ListTasks(ctx, s.projectID(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(tasks, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	in := boardservice.TaskInput{Title: title}
	if v, err := req.RequireString("description"); err == nil {
		in.Description = v
	}
	if v, err := req.RequireString("status"); err == nil {
		in.Status = v
	}
	if v, err := req.RequireFloat("priority"); err == nil {
		p := int(v)
		in.Priority = &p
	}
	if v, err := req.RequireString("epicId"); err == nil {
		in.EpicID = v
	}

	task, err := s.board.CreateTask(ctx, s.projectID(req), in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", task.ID)), nil
}

func (s *Server) updateTaskStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	task, err := s.board.UpdateTask(ctx, s.projectID(req), id, boardservice.TaskUpdate{Status: &status})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s is now %s", task.ID, task.Status)), nil
}

func (s *Server) addDependency(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("taskId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dependsOnID, err := req.RequireString("dependsOnId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	dep, err := s.graph.AddDependency(ctx, s.projectID(req), taskID, dependsOnID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s now depends on %s", dep.TaskID, dep.DependsOnID)), nil
}

func (s *Server) taskHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := history.Filter{}
	if v, err := req.RequireString("entityId"); err == nil {
		f.EntityID = v
	}

	db, err := s.pool.Get(s.projectID(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.recorder.Query(db, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(page.Events, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(WorkflowContract), nil
}

func (s *Server) readWorkflowResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "raido://workflow",
			MIMEType: "text/markdown",
			Text:     WorkflowContract,
		},
	}, nil
}
