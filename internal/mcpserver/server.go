// Package mcpserver exposes code execution as Model Context Protocol tools
// over stdio.
//
// Two tools are registered, execute_javascript and execute_typescript. Both
// take a single "code" argument and answer with the same JSON body the HTTP
// execute endpoints return. A failed run or a rejected request sets IsError
// on the result. Only host faults become protocol errors.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/handler"
)

const (
	serverName    = "js-playground"
	serverVersion = "0.1.0"
)

// Executor runs one request. service.ExecutionService implements it.
type Executor interface {
	Execute(ctx context.Context, req executor.Request) (executor.Outcome, error)
}

// MCPServer wraps the mcp-go server and its tools.
type MCPServer struct {
	exec      Executor
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// New creates the server and registers both tools.
func New(exec Executor, limits executor.Limits, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		exec:      exec,
		logger:    logger,
		mcpServer: server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
	}

	budget := fmt.Sprintf("Runs with a %s time limit and a %d MiB memory limit; there is no network, filesystem or require().",
		limits.Timeout, limits.MemoryLimitBytes>>20)

	s.mcpServer.AddTool(mcp.NewTool("execute_javascript",
		mcp.WithDescription("Execute JavaScript in a fresh sandbox and return the value of the last expression plus console output. "+budget),
		mcp.WithString("code", mcp.Required(), mcp.Description("JavaScript source to run")),
	), s.handler(executor.JavaScript))

	s.mcpServer.AddTool(mcp.NewTool("execute_typescript",
		mcp.WithDescription("Transpile TypeScript to JavaScript (no type checking) and execute it in a fresh sandbox. "+budget),
		mcp.WithString("code", mcp.Required(), mcp.Description("TypeScript source to run")),
	), s.handler(executor.TypeScript))

	return s
}

// ServeStdio blocks serving the protocol on stdin/stdout.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("mcp server listening on stdio")
	return server.ServeStdio(s.mcpServer)
}

func (s *MCPServer) handler(lang executor.Language) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := request.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError("code parameter is required"), nil
		}

		out, err := s.exec.Execute(ctx, executor.Request{Code: code, Language: lang})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		s.logger.Info("mcp execution finished",
			slog.String("tool", request.Params.Name),
			slog.Bool("ok", out.OK()),
			slog.String("kind", out.Kind()),
		)

		body, hostFault := handler.OutcomeBody(out)
		if hostFault {
			s.logger.Error("sandbox host fault", slog.String("error", out.Err.Error()))
			return nil, errors.New("sandbox unavailable")
		}

		text, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding result: %w", err)
		}

		result := mcp.NewToolResultText(string(text))
		result.IsError = !out.OK()
		return result, nil
	}
}
