// Package mcpserver binds internal/jobapi to the JSON-RPC 2.0 methods
// of §6 at a single HTTP endpoint (§4.O), extended with the MCP
// envelope methods (initialize, tools/list, resources/list,
// resources/read, prompts/list, prompts/get) dispatched as regular
// registered methods alongside tools/call, which closed-matches over
// the ten tool names of §4.M onto internal/jobapi calls.
package mcpserver

import (
	"net/http"

	"github.com/webharvest/webharvest/internal/jobapi"
	"github.com/webharvest/webharvest/internal/jsonrpc"
)

// ProtocolVersion is the MCP protocol version string this server speaks.
const ProtocolVersion = "2025-06-18"

// Server is the JSON-RPC 2.0 / MCP surface over a jobapi.Service.
type Server struct {
	rpc *jsonrpc.Server
	svc *jobapi.Service
}

// New builds a Server with every MCP envelope method and tool
// registered against svc.
func New(svc *jobapi.Service) *Server {
	s := &Server{rpc: jsonrpc.NewServer(), svc: svc}
	s.registerEnvelope()
	s.registerTools()
	return s
}

// Handler returns the http.HandlerFunc serving this endpoint.
func (s *Server) Handler() http.HandlerFunc {
	return s.rpc.Handler()
}

func (s *Server) registerEnvelope() {
	s.rpc.Register("initialize", func(params map[string]any) (any, error) {
		return map[string]any{
			"protocolVersion": ProtocolVersion,
			"serverInfo":      map[string]any{"name": "webharvest", "version": "0.1.0"},
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
				"prompts":   map[string]any{},
			},
		}, nil
	})

	s.rpc.Register("tools/list", func(params map[string]any) (any, error) {
		return map[string]any{"tools": toolDefinitions()}, nil
	})

	s.rpc.Register("tools/call", func(params map[string]any) (any, error) {
		name, _ := params["name"].(string)
		args, _ := params["arguments"].(map[string]any)
		return s.callTool(name, args)
	})

	// No managed resources/prompts are exposed beyond the tool surface;
	// the envelope methods still answer with empty lists rather than
	// erroring, matching clients that probe capabilities unconditionally.
	s.rpc.Register("resources/list", func(params map[string]any) (any, error) {
		return map[string]any{"resources": []any{}}, nil
	})
	s.rpc.Register("resources/read", func(params map[string]any) (any, error) {
		return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "no resources are exposed")
	})
	s.rpc.Register("prompts/list", func(params map[string]any) (any, error) {
		return map[string]any{"prompts": []any{}}, nil
	})
	s.rpc.Register("prompts/get", func(params map[string]any) (any, error) {
		return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "no prompts are exposed")
	})
}

// registerTools exposes each §4.M tool directly as a JSON-RPC method
// too, alongside the tools/call dispatch, since some clients invoke
// registered methods by name rather than always routing through
// tools/call.
func (s *Server) registerTools() {
	for name := range toolDefinitionsByName() {
		toolName := name
		s.rpc.Register(toolName, func(params map[string]any) (any, error) {
			return s.callTool(toolName, params)
		})
	}
}

func (s *Server) callTool(name string, args map[string]any) (any, error) {
	def, ok := toolDefinitionsByName()[name]
	if !ok {
		return nil, jsonrpc.NewError(jsonrpc.MethodNotFound, "unknown tool: "+name)
	}
	return def.call(s.svc, args)
}

func toolDefinitions() []map[string]any {
	defs := toolDefinitionsByName()
	out := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		out = append(out, map[string]any{
			"name":        d.name,
			"description": d.description,
			"inputSchema": d.schema,
		})
	}
	return out
}
