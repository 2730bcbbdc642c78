// Copyright 2025 The Watchdog Relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	mockPort           int
	mockPositiveChance float64
)

func init() {
	cmd := &cobra.Command{
		Use:   "mock-endpoints",
		Short: "Run a local server mocking the upstream matcher and consumer callbacks",
		Long: `Serves /matcher (a fake matching service), /positive and /negative
(logging callback receivers) and /log for local end-to-end testing.`,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cancel := handleSignals(c.Context())
			defer cancel()
			return runMockEndpoints(ctx)
		},
	}
	cmd.Flags().IntVar(&mockPort, "port", 8080, "HTTP port to listen on")
	cmd.Flags().Float64Var(&mockPositiveChance, "positive-chance", 0.1, "Probability that the mock matcher reports a match")
	rootCmd.AddCommand(cmd)
}

type mockMatchStatus struct {
	Code        int    `json:"Code"`
	Description string `json:"Description"`
}

type mockMatchResponse struct {
	Status     mockMatchStatus `json:"Status"`
	IsMatch    bool            `json:"IsMatch"`
	TrackingID string          `json:"TrackingId"`
}

func runMockEndpoints(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/matcher", mockMatcherHandler)
	mux.HandleFunc("/positive", mockLogHandler("positive"))
	mux.HandleFunc("/negative", mockLogHandler("negative"))
	mux.HandleFunc("/log", mockLogHandler("log"))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", mockPort),
		Handler: mux,
	}

	slog.Info("Mock endpoints listening",
		slog.Int("port", mockPort),
		slog.Float64("positiveChance", mockPositiveChance))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func mockMatcherHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	slog.Info("Mock matcher called",
		slog.String("query", r.URL.RawQuery),
		slog.String("body", string(body)))

	resp := mockMatchResponse{
		Status:     mockMatchStatus{Code: 3000, Description: "OK"},
		IsMatch:    rand.Float64() < mockPositiveChance,
		TrackingID: "WUS_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode mock matcher response", slog.Any("error", err))
	}
}

func mockLogHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		slog.Info("Mock callback received",
			slog.String("endpoint", name),
			slog.String("body", string(body)))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"OK"}`)
	}
}
