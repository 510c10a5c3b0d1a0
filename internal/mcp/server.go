package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"pulse-mcp/internal/metrics"
	"pulse-mcp/internal/users"
)

// Server exposes the metrics service as MCP tools.
type Server struct {
	svc     *metrics.Service
	users   *users.Directory
	version string
}

// NewServer creates a new MCP server.
func NewServer(svc *metrics.Service, dir *users.Directory, version string) *Server {
	return &Server{svc: svc, users: dir, version: version}
}

// Serve runs the MCP session over stdio until the client disconnects or ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	srv, err := s.build()
	if err != nil {
		return err
	}
	log.Info().Str("version", s.version).Msg("MCP server listening on stdio")
	return srv.Run(ctx, &sdk.StdioTransport{})
}

func (s *Server) build() (*sdk.Server, error) {
	srv := sdk.NewServer(&sdk.Implementation{Name: "pulse-mcp", Version: s.version}, nil)
	if err := s.registerTools(srv); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return srv, nil
}

// Call runs one tool through an in-process client session and returns its text.
// Tool errors come back as errors carrying the tool's message.
func (s *Server) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	srv, err := s.build()
	if err != nil {
		return "", err
	}

	clientTransport, serverTransport := sdk.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverTransport, nil)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	defer ss.Close()

	client := sdk.NewClient(&sdk.Implementation{Name: "pulse-cli", Version: s.version}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		return "", fmt.Errorf("failed to connect client: %w", err)
	}
	defer cs.Close()

	res, err := cs.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if text, ok := c.(*sdk.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	if res.IsError {
		return "", errors.New(sb.String())
	}
	return sb.String(), nil
}
