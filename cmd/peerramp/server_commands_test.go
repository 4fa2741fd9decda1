package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func healthTestApp() *cli.App {
	return &cli.App{
		Name: "peerramp",
		Commands: []*cli.Command{
			{
				Name: "server",
				Subcommands: []*cli.Command{
					healthCommand(),
				},
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				EnvVars: []string{"SERVER_URL"},
			},
		},
	}
}

func TestHealthCommand_Success(t *testing.T) {
	// Create test server that returns 200 OK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	os.Setenv("SERVER_URL", server.URL)
	defer os.Unsetenv("SERVER_URL")

	err := healthTestApp().Run([]string{"peerramp", "server", "health"})
	require.NoError(t, err)
}

func TestHealthCommand_Failure(t *testing.T) {
	// Create test server that returns 500
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	os.Setenv("SERVER_URL", server.URL)
	defer os.Unsetenv("SERVER_URL")

	err := healthTestApp().Run([]string{"peerramp", "server", "health"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy status: 500")
}

func TestHealthCommand_RequiresServerURL(t *testing.T) {
	os.Unsetenv("SERVER_URL")

	err := healthTestApp().Run([]string{"peerramp", "server", "health"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server-url is required")
}
