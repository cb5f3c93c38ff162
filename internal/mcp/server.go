package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ldi/taskline/internal/app"
	"github.com/ldi/taskline/internal/db"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const batchDescription = `Batch object with "additions" [{task, parentTask?, recurrence?, dependsOn?, dueDate?}], ` +
	`"removals" [{task}] and "updates" [{identifier, text?, status?, priority?, assignee?, tags?, notes?, recurrence?, dueDate?, dependsOn?}]. ` +
	`Tasks are referenced by their exact text.`

// NewServer creates a new MCP server.
func NewServer(svc *app.Service) *server.MCPServer {
	s := server.NewMCPServer("Taskline", "0.1.0")

	// Interpreter
	s.AddTool(mcp.NewTool("apply_batch",
		mcp.WithDescription("Apply a structured batch of task additions, removals and updates. Parents and dependencies may name tasks added in the same batch."),
		mcp.WithObject("batch", mcp.Description(batchDescription), mcp.Required()),
		mcp.WithBoolean("dry_run", mcp.Description("Resolve references without writing anything")),
	), applyBatchHandler(svc, false))

	s.AddTool(mcp.NewTool("preview_batch",
		mcp.WithDescription("Resolve a batch against the current tasks without applying it."),
		mcp.WithObject("batch", mcp.Description(batchDescription), mcp.Required()),
	), applyBatchHandler(svc, true))

	s.AddTool(mcp.NewTool("apply_command",
		mcp.WithDescription("Interpret a free text instruction with the configured language model and apply the resulting batch."),
		mcp.WithString("instruction", mcp.Description("e.g. 'Add: Plan vacation; Book flights under Plan vacation. Remove: Finish report.'"), mcp.Required()),
		mcp.WithBoolean("dry_run", mcp.Description("Resolve references without writing anything")),
	), applyCommandHandler(svc))

	// Queries
	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List all tasks as a tree, newest first."),
	), listTasksHandler(svc))

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a single task with its subtasks."),
		mcp.WithString("task", mcp.Description("Task ID or exact task text"), mcp.Required()),
	), getTaskHandler(svc))

	s.AddTool(mcp.NewTool("get_status",
		mcp.WithDescription("Count tasks by status, plus blocked, recurring and overdue tasks."),
	), getStatusHandler(svc))

	// Sharing
	s.AddTool(mcp.NewTool("share_task",
		mcp.WithDescription("Generate a share token granting read-only lookup of a task and its subtree."),
		mcp.WithString("task", mcp.Description("Task ID or exact task text"), mcp.Required()),
	), shareTaskHandler(svc))

	s.AddTool(mcp.NewTool("get_shared_task",
		mcp.WithDescription("Look up a shared task by its share token."),
		mcp.WithString("token", mcp.Description("Share token"), mcp.Required()),
	), getSharedTaskHandler(svc))

	s.AddTool(mcp.NewTool("add_attachment",
		mcp.WithDescription("Attach a URL to a task."),
		mcp.WithString("task", mcp.Description("Task ID or exact task text"), mcp.Required()),
		mcp.WithString("url", mcp.Description("Absolute URL"), mcp.Required()),
		mcp.WithString("name", mcp.Description("Display name (defaults to the URL host)")),
	), addAttachmentHandler(svc))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func applyBatchHandler(svc *app.Service, preview bool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)

		var raw map[string]any
		switch b := args["batch"].(type) {
		case map[string]any:
			raw = b
		case string:
			// Some clients send the object serialized.
			if err := json.Unmarshal([]byte(b), &raw); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("batch is not valid JSON: %v", err)), nil
			}
		case nil:
			return mcp.NewToolResultError("batch is required"), nil
		default:
			return mcp.NewToolResultError("batch must be an object"), nil
		}

		dryRun := preview || mcp.ParseBoolean(request, "dry_run", false)
		res, err := svc.ApplyRaw(ctx, raw, dryRun)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res)
	}
}

func applyCommandHandler(svc *app.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		instruction := mcp.ParseString(request, "instruction", "")
		if instruction == "" {
			return mcp.NewToolResultError("instruction is required"), nil
		}

		res, err := svc.ApplyCommand(ctx, instruction, mcp.ParseBoolean(request, "dry_run", false))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res)
	}
}

func listTasksHandler(svc *app.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := svc.Tree(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"tasks": snap.Roots, "count": snap.Len()})
	}
}

func getTaskHandler(svc *app.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref := mcp.ParseString(request, "task", "")

		t, err := svc.Find(ctx, ref)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task '%s' not found", ref)), nil
		}
		return jsonResult(t)
	}
}

func getStatusHandler(svc *app.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := svc.Status(ctx, time.Now())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(st)
	}
}

func shareTaskHandler(svc *app.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref := mcp.ParseString(request, "task", "")

		t, token, err := svc.Share(ctx, ref)
		if errors.Is(err, db.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Task '%s' not found", ref)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]string{"task_id": t.ID, "token": token})
	}
}

func getSharedTaskHandler(svc *app.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		token := mcp.ParseString(request, "token", "")

		t, err := svc.Shared(ctx, token)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t == nil {
			return mcp.NewToolResultError("No task is shared under this token"), nil
		}
		return jsonResult(t)
	}
}

func addAttachmentHandler(svc *app.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref := mcp.ParseString(request, "task", "")
		url := mcp.ParseString(request, "url", "")
		name := mcp.ParseString(request, "name", "")

		att, err := svc.Attach(ctx, ref, name, url)
		if errors.Is(err, db.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Task '%s' not found", ref)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(att)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
