package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"tenantgate/internal/auth"
	"tenantgate/internal/domains"
	"tenantgate/internal/ledger"
	"tenantgate/internal/services"
)

// Server exposes the caller's tenant context as MCP tools. Every tool acts
// as the identity the HTTP auth middleware attached to the request.
type Server struct {
	mcpServer *server.MCPServer
	access    *services.AccessService
	domains   *domains.Service
	ledger    *ledger.Ledger
}

func NewServer(name, version string, access *services.AccessService, doms *domains.Service, led *ledger.Ledger) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(true),
		),
		access:  access,
		domains: doms,
		ledger:  led,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_entitlements",
			mcp.WithDescription("Return the active tenant, role, enabled features and visible navigation of the caller"),
		),
		s.handleGetEntitlements,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"switch_tenant",
			mcp.WithDescription("Make another tenant the caller's active tenant"),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("The tenant to switch to")),
		),
		s.handleSwitchTenant,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"domain_status",
			mcp.WithDescription("Report the verification and certificate state of a custom domain"),
			mcp.WithString("domain_id", mcp.Required(), mcp.Description("The ID of the custom domain")),
		),
		s.handleDomainStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"record_cost",
			mcp.WithDescription("Record a metered API call against the caller's active tenant"),
			mcp.WithString("endpoint", mcp.Required(), mcp.Description("The priced endpoint that was called")),
			mcp.WithNumber("quantity", mcp.Description("Number of units consumed, default 1")),
		),
		s.handleRecordCost,
	)
}

func (s *Server) snapshot(ctx context.Context) (*services.Snapshot, error) {
	id, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("unauthenticated")
	}
	return s.access.Snapshot(ctx, id.SessionID, id.Subject)
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(jsonBytes))
}

type entitlementsResult struct {
	TenantID     string   `json:"tenant_id,omitempty"`
	TenantName   string   `json:"tenant_name,omitempty"`
	Role         string   `json:"role,omitempty"`
	IsAdmin      bool     `json:"is_admin"`
	IsWhiteLabel bool     `json:"is_white_label"`
	Features     []string `json:"features"`
	Navigation   []string `json:"navigation"`
}

func (s *Server) handleGetEntitlements(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load session: %v", err)), nil
	}
	return jsonResult(summarize(snap)), nil
}

func summarize(snap *services.Snapshot) entitlementsResult {
	out := entitlementsResult{
		Role:         string(snap.Role),
		IsAdmin:      snap.Entitlements.IsAdmin,
		IsWhiteLabel: snap.Entitlements.IsWhiteLabel,
		Features:     make([]string, 0, len(snap.Entitlements.Features)),
		Navigation:   make([]string, 0, len(snap.Entitlements.VisibleNav)),
	}
	if snap.HasTenant() {
		out.TenantID = snap.Tenant.ID
		out.TenantName = snap.Tenant.Name
	}
	for _, f := range snap.Entitlements.Features {
		out.Features = append(out.Features, string(f))
	}
	for _, n := range snap.Entitlements.VisibleNav {
		out.Navigation = append(out.Navigation, n.Route)
	}
	return out
}

func (s *Server) handleSwitchTenant(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	tenantID, ok := args["tenant_id"].(string)
	if !ok || tenantID == "" {
		return mcp.NewToolResultError("Missing required parameter: tenant_id"), nil
	}

	id, ok := auth.IdentityFrom(ctx)
	if !ok {
		return mcp.NewToolResultError("Failed to switch tenant: unauthenticated"), nil
	}
	snap, err := s.access.Switch(ctx, id.SessionID, id.Subject, tenantID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to switch tenant: %v", err)), nil
	}
	return jsonResult(summarize(snap)), nil
}

func (s *Server) handleDomainStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	domainID, ok := args["domain_id"].(string)
	if !ok || domainID == "" {
		return mcp.NewToolResultError("Missing required parameter: domain_id"), nil
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load session: %v", err)), nil
	}
	d, err := s.domains.GetDomain(ctx, domainID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load domain: %v", err)), nil
	}
	member := false
	for _, m := range snap.Memberships {
		if m.TenantID == d.TenantID {
			member = true
			break
		}
	}
	if !member {
		// indistinguishable from a missing domain
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load domain: %v", domains.ErrDomainNotFound)), nil
	}

	return jsonResult(map[string]any{
		"domain":              d.Domain,
		"verification_status": d.VerificationStatus,
		"ssl_status":          d.SSLStatus,
		"attempts":            d.VerificationAttempts,
		"last_error":          d.LastError,
		"live":                d.Live(),
		"cname_target":        d.CNAMETarget,
		"txt_record":          s.domains.VerificationRecord(d.Domain),
		"verification_token":  d.VerificationToken,
	}), nil
}

func (s *Server) handleRecordCost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	endpoint, ok := args["endpoint"].(string)
	if !ok || endpoint == "" {
		return mcp.NewToolResultError("Missing required parameter: endpoint"), nil
	}
	quantity := int64(1)
	if q, ok := args["quantity"].(float64); ok {
		quantity = int64(q)
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load session: %v", err)), nil
	}
	var tenantID *string
	if snap.HasTenant() {
		id := snap.Tenant.ID
		tenantID = &id
	}
	entry, err := s.ledger.RecordCall(ctx, endpoint, tenantID, quantity)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to record cost: %v", err)), nil
	}
	return jsonResult(entry), nil
}

// MountHTTPHandlers serves the SSE transport under /mcp. Handlers must run
// behind the auth middleware; the caller's identity is carried from the HTTP
// request into every tool call.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer,
		server.WithStaticBasePath("/mcp"),
		server.WithSSEContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if id, ok := auth.IdentityFrom(r.Context()); ok {
				return auth.WithIdentity(ctx, id)
			}
			return ctx
		}),
	)

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
