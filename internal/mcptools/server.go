package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewCaseMCPServer creates an MCP server with the case tools registered.
func NewCaseMCPServer(svc *CaseService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "caseflow",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_case",
		Description: "Create a case from local documents and run it through upload, extraction, validation and generation. Reports a blocked result with the validation issues when validation disallows generation.",
	}, svc.RunCase)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resume_case",
		Description: "Resume a case in error status from the first stage whose output is missing. Files are never re-uploaded.",
	}, svc.ResumeCase)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_case",
		Description: "Fetch a case and return its stages, files and validation issues.",
	}, svc.GetCase)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "case_status",
		Description: "Report which pipeline stages of a case are complete, the next stage, and where a retry would start.",
	}, svc.CaseStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recent_cases",
		Description: "List recently touched cases, most recent first.",
	}, svc.RecentCases)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "case_report",
		Description: "Return the service's computed totals for a case: locations, losses, total insured value, completeness and validation counts.",
	}, svc.CaseReport)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "case_statistics",
		Description: "Count cases on the service by status.",
	}, svc.CaseStatistics)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP server over streamable HTTP on addr until ctx is
// cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
