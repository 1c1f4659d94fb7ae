// Package mcpserver exposes onboarding runs as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"github.com/kursadbilgin/onboarding-engine/internal/report"
	"github.com/kursadbilgin/onboarding-engine/internal/service"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const (
	serverName    = "Onboarding Engine"
	serverVersion = "1.0.0"
)

type OnboardingService interface {
	Submit(ctx context.Context, req service.RunRequest, wait bool) (*service.Submission, error)
	GetRun(ctx context.Context, runID string) (*domain.RunSummary, error)
}

type Server struct {
	mcpServer  *server.MCPServer
	onboarding OnboardingService
	logger     *zap.Logger
}

func NewServer(onboarding OnboardingService, logger *zap.Logger) (*Server, error) {
	if onboarding == nil {
		return nil, fmt.Errorf("onboarding service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcpServer: server.NewMCPServer(
			serverName,
			serverVersion,
			server.WithToolCapabilities(true),
		),
		onboarding: onboarding,
		logger:     logger,
	}

	s.registerTools()
	return s, nil
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio blocks serving the tools on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"onboard_member",
			mcp.WithDescription("Onboard every contact of a member organization into a project's committees and return the run report"),
			mcp.WithString("organization", mcp.Required(), mcp.Description("Member organization name")),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project slug, e.g. cncf")),
			mcp.WithNumber("batch_size", mcp.Description("Contacts processed concurrently per batch")),
		),
		s.handleOnboardMember,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_run_report",
			mcp.WithDescription("Return the stored report of an onboarding run"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier")),
		),
		s.handleGetRunReport,
	)
}

func (s *Server) handleOnboardMember(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	organization, _ := args["organization"].(string)
	project, _ := args["project"].(string)
	if organization == "" || project == "" {
		return mcp.NewToolResultError("Missing required parameters: organization, project"), nil
	}

	req := service.RunRequest{Organization: organization, ProjectSlug: project}
	if batchSize, ok := args["batch_size"].(float64); ok {
		req.BatchSize = int(batchSize)
	}

	submission, err := s.onboarding.Submit(ctx, req, true)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to onboard: %v", err)), nil
	}

	run := submission.Run
	s.logger.Info("mcp onboarding run finished",
		zap.String("runId", run.ID),
		zap.String("status", run.Status.String()),
	)
	return documentResult(report.NewDocument(run.Summary(), run.Metrics))
}

func (s *Server) handleGetRunReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	runID, ok := args["run_id"].(string)
	if !ok || runID == "" {
		return mcp.NewToolResultError("Missing required parameter: run_id"), nil
	}

	summary, err := s.onboarding.GetRun(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load run: %v", err)), nil
	}

	return documentResult(report.NewDocument(*summary, nil))
}

func documentResult(doc report.Document) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
