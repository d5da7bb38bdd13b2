package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"duo-chat/auth"
	"duo-chat/domain"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type BaseHTTPSuite struct {
	suite.Suite
	Config   Config
	client   *http.Client
	verifier *auth.TokenVerifier
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHTTPSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("E2E_SERVER_ADDR is not set")
	}
	s.Require().NotEmpty(s.Config.JwtSecretKey, "E2E_JWT_SECRET_KEY is required")
	s.client = &http.Client{Timeout: 10 * time.Second}
	s.verifier = auth.NewTokenVerifier(s.Config.JwtSecretKey, time.Hour)
}

// Step prints a colorized header for a scenario step
func (s *BaseHTTPSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseHTTPSuite) Token(claim domain.Claim) string {
	token, err := s.verifier.Sign(claim)
	s.Require().NoError(err)
	return token
}

// Call sends a JSON request and decodes the answer into out when given.
// It returns the status code.
func (s *BaseHTTPSuite) Call(method, path, token string, body, out any) int {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, strings.TrimRight(s.Config.ServerAddr, "/")+path, reader)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	s.Require().NoError(err, "Failed to reach server at "+s.Config.ServerAddr)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.T().Logf("HTTP %s %s [%d] in %v", method, path, resp.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		s.T().Logf("RESPONSE:\n%s", raw)
	}
	if out != nil && len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, out))
	}
	return resp.StatusCode
}

// WithHealth provides a grpc.health.v1 client within a contextual test step
func (s *BaseHTTPSuite) WithHealth(name string, fn func(ctx context.Context, client grpc_health_v1.HealthClient)) {
	s.Step(name)
	conn, err := grpc.NewClient(s.Config.HealthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.HealthAddr)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fn(ctx, grpc_health_v1.NewHealthClient(conn))
}
