package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/mediarun/pipeline-runtime/pkg/pipeline"
	"github.com/mediarun/pipeline-runtime/pkg/runtimedata"
)

// executeRequest is the body of POST /pipelines/execute: a manifest plus
// the single text/JSON input fed to the manifest's entry node.
type executeRequest struct {
	Manifest string `json:"manifest"`
	Input    string `json:"input"`
	InputKind string `json:"input_kind"` // "text" or "json", defaults to "text"
}

type executeResponse struct {
	OutputKind string `json:"output_kind"`
	Output     string `json:"output"`
}

// pipelineHandler exposes unary manifest execution over HTTP so the
// runner started in main is reachable without a client library.
func pipelineHandler(runner *pipeline.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		var req executeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		manifest, err := pipeline.ParseManifest([]byte(req.Manifest))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := manifest.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var input runtimedata.RuntimeData
		if req.InputKind == "json" {
			input = runtimedata.NewJSON(req.Input)
		} else {
			input = runtimedata.NewText(req.Input)
		}

		out, err := runner.Execute(r.Context(), manifest, input)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		resp := executeResponse{OutputKind: out.Kind().String(), Output: out.Text}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
