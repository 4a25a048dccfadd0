package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MegaGrindStone/llama-web-ui/internal/models"
	"github.com/MegaGrindStone/llama-web-ui/internal/services"
)

func TestAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for _, line := range []string{
			`data: {"content":"Ho"}`,
			`data: [DONE]`,
			`data: {"content":"la"}`,
		} {
			fmt.Fprintln(w, line)
		}
	}))
	defer srv.Close()

	backend := services.NewBackend(services.BackendConfig{BaseURL: srv.URL}, nil)

	var streamed strings.Builder
	reply, err := ask(context.Background(), backend, models.ChatRequest{Message: "hi", Model: "m"}, "error",
		func(f string) { streamed.WriteString(f) })
	require.NoError(t, err)
	assert.Equal(t, "Hola", reply)
	assert.Equal(t, "Hola", streamed.String())
}

func TestAskFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	backend := services.NewBackend(services.BackendConfig{BaseURL: srv.URL}, nil)

	var streamed strings.Builder
	reply, err := ask(context.Background(), backend, models.ChatRequest{Message: "hi", Model: "m"}, "sin conexión",
		func(f string) { streamed.WriteString(f) })

	var statusErr *services.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Equal(t, "sin conexión", reply)
	assert.Equal(t, "sin conexión", streamed.String())
}
