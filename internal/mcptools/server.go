package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer creates an MCP server with the three search tools registered.
// version is reported as the implementation version.
func NewServer(svc *Service, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "herrenlos",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_ownerless_parcels",
		Description: "Search the configured municipalities for parcels without a recorded owner. Returns the candidate parcels, one outcome per municipality, and the report files written.",
	}, svc.FindParcels)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_municipalities",
		Description: "Parse the municipality list (name, bounding box, contact) and report rows that were skipped as invalid.",
	}, svc.ListMunicipalities)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_run_status",
		Description: "Show a recorded search run with its per-municipality outcomes, plus the most recent runs.",
	}, svc.GetRunStatus)

	return server
}

// RunStdio runs the server on stdio, blocking until stdin is closed or the
// context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP tools over streamable HTTP on addr until ctx is
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

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
