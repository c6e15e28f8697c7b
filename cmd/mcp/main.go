package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/file_io"
	"github.com/adityaraj/storegate/internal/log_service"
)

// Diagnostics MCP server: exposes the coordinator's tracked files and worker
// health as tools so an operator (or an agent) can inspect a running
// coordination fleet over stdio.

type diagContext struct {
	coordinatorAddr string
	comm            communication.Communicator
	fio             file_io.FileIO
}

func addTools(s *mcpserver.MCPServer, diag *diagContext) {
	trackedTool := mcp.NewTool("list_tracked_files",
		mcp.WithDescription("List files currently holding a grant or with queued requests"),
	)
	s.AddTool(trackedTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := diag.comm.Send(ctx, diag.coordinatorAddr, communication.Message{
			Type:    communication.MessageTypeTrackedFiles,
			Payload: communication.TrackedFilesRequest{},
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to query coordinator: %v", err)), nil
		}
		if resp.Code != communication.CodeOK {
			return mcp.NewToolResultError(fmt.Sprintf("Coordinator returned %s", resp.Code)), nil
		}

		var tracked communication.TrackedFilesResponse
		if err := json.Unmarshal(resp.Body, &tracked); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Malformed response: %v", err)), nil
		}

		if len(tracked.Files) == 0 {
			return mcp.NewToolResultText("No files are currently tracked."), nil
		}

		result := "Tracked files:\n"
		for _, f := range tracked.Files {
			result += fmt.Sprintf("- %s holder=%s owner=%s queued=%d\n", f.Path, f.HolderID, f.HolderOwner, f.QueuedCount)
		}
		return mcp.NewToolResultText(result), nil
	})

	workersTool := mcp.NewTool("list_workers",
		mcp.WithDescription("List registered workers and their liveness status"),
	)
	s.AddTool(workersTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := diag.comm.Send(ctx, diag.coordinatorAddr, communication.Message{
			Type:    communication.MessageTypeListWorkers,
			Payload: communication.ListWorkersRequest{},
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to query coordinator: %v", err)), nil
		}
		if resp.Code != communication.CodeOK {
			return mcp.NewToolResultError(fmt.Sprintf("Coordinator returned %s", resp.Code)), nil
		}

		var workers communication.ListWorkersResponse
		if err := json.Unmarshal(resp.Body, &workers); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Malformed response: %v", err)), nil
		}

		if len(workers.Workers) == 0 {
			return mcp.NewToolResultText("No workers are registered."), nil
		}

		result := "Workers:\n"
		for _, w := range workers.Workers {
			result += fmt.Sprintf("- %s address=%s status=%s\n", w.WorkerID, w.Address, w.Status)
		}
		return mcp.NewToolResultText(result), nil
	})

	readTool := mcp.NewTool("read_file",
		mcp.WithDescription("Read a coordinated file from the shared disk"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Resolved path of the file, as reported by list_tracked_files"),
		),
	)
	s.AddTool(readTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := diag.fio.Read(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read file: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func main() {
	var (
		coordinator = flag.String("coordinator", "localhost:7410", "Coordinator address")
		listen      = flag.String("listen", "localhost:7419", "Local address for coordinator replies")
		namespace   = flag.String("namespace", "", "Message namespace")
	)
	flag.Parse()

	ls := log_service.NewNoOpLogService() // stdio is the MCP channel; keep it clean
	comm := communication.NewHTTPCommunicator(*listen, *namespace, ls)

	diag := &diagContext{
		coordinatorAddr: *coordinator,
		comm:            comm,
		fio:             file_io.NewLocalDiscFileIO(),
	}

	s := mcpserver.NewMCPServer(
		"storegate-diagnostics",
		"1.0.0",
		mcpserver.WithToolCapabilities(false),
	)
	addTools(s, diag)

	if err := mcpserver.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
	}
}
