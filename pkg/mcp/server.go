package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pario-ai/l402/pkg/budget"
	"github.com/pario-ai/l402/pkg/ledger"
	"github.com/pario-ai/l402/pkg/models"
)

// TokenStatter reports credential store statistics without coupling to a
// concrete store.
type TokenStatter interface {
	Stats() (models.TokenStats, error)
}

// Deps are the components the MCP tools read from. Any of them may be nil;
// the matching tool then reports that it is not configured.
type Deps struct {
	// HTTP is a client whose transport pays L402 challenges.
	HTTP   *http.Client
	Guard  *budget.Guard
	Tokens TokenStatter
	Ledger ledger.Ledger
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	http    *http.Client
	guard   *budget.Guard
	tokens  TokenStatter
	ledger  ledger.Ledger
	version string
	logger  zerolog.Logger
}

// New creates a new MCP Server.
func New(deps Deps, version string, logger zerolog.Logger) *Server {
	return &Server{
		http:    deps.HTTP,
		guard:   deps.Guard,
		tokens:  deps.Tokens,
		ledger:  deps.Ledger,
		version: version,
		logger:  logger.With().Str("component", "mcp").Logger(),
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, *errorResponse(nil, CodeParseError, "parse error"))
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			continue
		}
		s.writeResponse(w, *resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != jsonrpcVersion {
		if req.isNotification() {
			return nil
		}
		return errorResponse(req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}

	switch req.Method {
	case MethodInitialize:
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: serverName, Version: s.version},
		})
	case MethodPing:
		return resultResponse(req.ID, struct{}{})
	case MethodToolsList:
		return resultResponse(req.ID, ToolsListResult{Tools: allTools})
	case MethodToolsCall:
		return s.handleToolsCall(ctx, req)
	}

	if req.isNotification() {
		if req.Method != MethodInitialized {
			s.logger.Debug().Str("method", req.Method).Msg("ignoring notification")
		}
		return nil
	}
	return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	s.logger.Debug().Str("tool", params.Name).Msg("tool call")
	return resultResponse(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal response")
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error().Err(err).Msg("write response")
	}
}
