//go:build e2e

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var graphlensBin string

func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "graphlens-e2e-*")
	if err != nil {
		panic("failed to create temp dir: " + err.Error())
	}
	defer os.RemoveAll(tmp)

	graphlensBin = filepath.Join(tmp, "graphlens")
	build := exec.Command("go", "build", "-ldflags", "-X github.com/msalah0e/graphlens/cmd.version=9.9.9-test", "-o", graphlensBin, ".")
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		panic("failed to build graphlens: " + err.Error())
	}

	os.Exit(m.Run())
}

// fakeService stands in for the database proxy.
func fakeService(t *testing.T, schemaOK bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/api/endpoints", func(w http.ResponseWriter, r *http.Request) {
		reply(w, []map[string]any{
			{"path": "/api/query/getDoctors", "method": "GET", "query_name": "getDoctors", "parameters": []any{}},
			{"path": "/api/query/getPatients", "method": "GET", "query_name": "getPatients",
				"parameters": []any{map[string]any{"name": "limit", "param_type": "I32"}}},
			{"path": "/api/query/assignDoctorToPatient", "method": "POST", "query_name": "assignDoctorToPatient", "parameters": []any{}},
		})
	})
	mux.HandleFunc("/api/query/getDoctors", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"doctors": []any{map[string]any{"id": "d1", "label": "Doctor", "name": "A"}}})
	})
	mux.HandleFunc("/api/query/getPatients", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"patients": []any{
			map[string]any{"id": "p1", "label": "Patient", "name": "P"},
			map[string]any{"id": "p2", "label": "Patient", "name": "Q"},
		}})
	})
	mux.HandleFunc("/api/query/assignDoctorToPatient", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"edges": []any{map[string]any{"id": "e1", "from": "d1", "to": "p1", "label": "treats"}}})
	})
	mux.HandleFunc("/api/schema", func(w http.ResponseWriter, r *http.Request) {
		if !schemaOK {
			http.Error(w, "schema unavailable", http.StatusInternalServerError)
			return
		}
		reply(w, map[string]any{
			"nodes": []any{map[string]any{"name": "Doctor", "properties": map[string]any{"name": "String"}}},
			"edges": []any{map[string]any{"name": "treats", "from_node": "Doctor", "to_node": "Patient", "properties": map[string]any{}}},
		})
	})
	mux.HandleFunc("/node-connections", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("node_id") != "d1" {
			reply(w, map[string]any{})
			return
		}
		reply(w, map[string]any{
			"connected_nodes": []any{map[string]any{"id": "p3", "label": "Patient"}},
			"outgoing_edges":  []any{map[string]any{"id": "e3", "from": "d1", "to": "p3", "label": "treats"}},
		})
	})
	mux.HandleFunc("/node-details", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"found": true, "node": map[string]any{"id": r.URL.Query().Get("id"), "label": "Patient", "name": "R"}})
	})
	mux.HandleFunc("/nodes-edges", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "50" {
			http.Error(w, "unexpected limit", http.StatusBadRequest)
			return
		}
		reply(w, map[string]any{"data": map[string]any{
			"nodes": []any{
				map[string]any{"id": "d1", "label": "Doctor", "name": "A"},
				map[string]any{"id": "p1", "label": "Patient", "name": "P"},
			},
			"edges":   []any{map[string]any{"id": "e1", "from": "d1", "to": "p1", "label": "treats"}},
			"vectors": []any{},
		}})
	})
	mux.HandleFunc("/nodes-by-label", func(w http.ResponseWriter, r *http.Request) {
		label := r.URL.Query().Get("label")
		reply(w, map[string]any{"nodes": []any{
			map[string]any{"id": "x1", "label": label},
			map[string]any{"id": "x2", "label": label},
		}})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

// runGraphlens executes the binary with an isolated HOME directory.
func runGraphlens(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	cmd := exec.Command(graphlensBin, args...)
	home := t.TempDir()
	cmd.Dir = home
	cmd.Env = append(os.Environ(),
		"HOME="+home,
		"XDG_CONFIG_HOME="+filepath.Join(home, ".config"),
		"NO_COLOR=1",
		"GRAPHLENS_URL=",
		"GRAPHLENS_API_KEY=",
	)

	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	exitCode = 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			t.Fatalf("failed to run graphlens %v: %v", args, err)
		}
	}
	return outBuf.String(), errBuf.String(), exitCode
}

func TestE2E_Version(t *testing.T) {
	out, _, code := runGraphlens(t, "--version")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "9.9.9") {
		t.Errorf("expected version output to contain '9.9.9', got %q", out)
	}
}

func TestE2E_Help(t *testing.T) {
	out, _, code := runGraphlens(t, "--help")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	for _, want := range []string{"Available Commands", "explore", "view"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected help to contain %q, got %q", want, out)
		}
	}
}

func TestE2E_Endpoints(t *testing.T) {
	ts := fakeService(t, true)
	out, errOut, code := runGraphlens(t, "endpoints", "--url", ts.URL)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	for _, want := range []string{"getDoctors", "assignDoctorToPatient", "edge", "limit:I32"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected endpoints output to contain %q, got %q", want, out)
		}
	}
}

func TestE2E_EndpointsUnreachable(t *testing.T) {
	_, errOut, code := runGraphlens(t, "endpoints", "--url", "http://127.0.0.1:1")
	if code == 0 {
		t.Fatal("expected non-zero exit for unreachable service")
	}
	if !strings.Contains(errOut, "graphlens:") {
		t.Errorf("expected error on stderr, got %q", errOut)
	}
}

func TestE2E_Schema(t *testing.T) {
	ts := fakeService(t, true)
	out, _, code := runGraphlens(t, "schema", "--url", ts.URL)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "Doctor") || !strings.Contains(out, "treats") {
		t.Errorf("unexpected schema output %q", out)
	}
}

func TestE2E_SchemaFallback(t *testing.T) {
	ts := fakeService(t, false)
	out, _, code := runGraphlens(t, "schema", "--url", ts.URL, "--sample", "getPatients")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "discovering types") || !strings.Contains(out, "Patient") {
		t.Errorf("unexpected fallback output %q", out)
	}
}

func TestE2E_ExploreJSON(t *testing.T) {
	ts := fakeService(t, true)
	out, errOut, code := runGraphlens(t, "explore", "--url", ts.URL,
		"-q", "getDoctors", "-q", "getPatients", "-q", "assignDoctorToPatient",
		"--param", "limit=5", "--ticks", "50", "--format", "json")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}

	var doc struct {
		Nodes     []map[string]any          `json:"nodes"`
		Edges     []map[string]any          `json:"edges"`
		Positions map[string]map[string]any `json:"positions"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, out)
	}
	if len(doc.Nodes) != 3 {
		t.Errorf("expected 3 nodes, got %d", len(doc.Nodes))
	}
	if len(doc.Edges) != 1 {
		t.Errorf("expected 1 real edge, got %d", len(doc.Edges))
	}
	if len(doc.Positions) != 3 {
		t.Errorf("expected 3 positions, got %d", len(doc.Positions))
	}
}

func TestE2E_ExploreSample(t *testing.T) {
	ts := fakeService(t, true)
	out, errOut, code := runGraphlens(t, "explore", "--url", ts.URL,
		"--sample", "--limit", "50", "--ticks", "20", "--format", "json")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	var doc struct {
		Nodes []map[string]any `json:"nodes"`
		Edges []map[string]any `json:"edges"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, out)
	}
	if len(doc.Nodes) != 2 || len(doc.Edges) != 1 {
		t.Errorf("expected 2 nodes and 1 edge, got %d and %d", len(doc.Nodes), len(doc.Edges))
	}
}

func TestE2E_ExploreSampleNodesOnlyWithQuery(t *testing.T) {
	ts := fakeService(t, true)
	out, errOut, code := runGraphlens(t, "explore", "--url", ts.URL,
		"--sample", "--label", "Nurse", "--nodes-only", "-q", "getDoctors", "--ticks", "10")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	for _, want := range []string{"nodes-by-label", "getDoctors", "x1", "x2", "d1", "Nurse"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}

func TestE2E_ExploreSampleFlags(t *testing.T) {
	ts := fakeService(t, true)
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--sample", "--limit", "301"}, "300"},
		{[]string{"-q", "getDoctors", "--label", "Doctor"}, "--sample"},
		{[]string{"--sample", "--nodes-only"}, "--label"},
		{nil, "--sample"},
	}
	for _, tt := range tests {
		args := append([]string{"explore", "--url", ts.URL}, tt.args...)
		_, errOut, code := runGraphlens(t, args...)
		if code == 0 {
			t.Errorf("%v: expected non-zero exit", tt.args)
		}
		if !strings.Contains(errOut, tt.want) {
			t.Errorf("%v: expected error to mention %q, got %q", tt.args, tt.want, errOut)
		}
	}
}

func TestE2E_ExploreExpandFocusDOT(t *testing.T) {
	ts := fakeService(t, true)
	out, errOut, code := runGraphlens(t, "explore", "--url", ts.URL,
		"-q", "getDoctors", "--expand", "--focus", "d1", "--ticks", "20", "--format", "dot")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	for _, want := range []string{"digraph graphlens", `"d1"`, `"p3"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected dot output to contain %s, got %q", want, out)
		}
	}
}

func TestE2E_ExploreAllFail(t *testing.T) {
	ts := fakeService(t, true)
	_, errOut, code := runGraphlens(t, "explore", "--url", ts.URL, "-q", "missingQuery")
	if code == 0 {
		t.Fatal("expected non-zero exit when every query fails")
	}
	if !strings.Contains(errOut, "missingQuery") {
		t.Errorf("expected failing query in error, got %q", errOut)
	}
}

func TestE2E_ExploreTable(t *testing.T) {
	ts := fakeService(t, true)
	out, _, code := runGraphlens(t, "explore", "--url", ts.URL, "-q", "getDoctors", "-q", "missingQuery", "--ticks", "10")
	if code != 0 {
		t.Fatalf("expected exit 0 for partial failure, got %d", code)
	}
	for _, want := range []string{"getDoctors", "missingQuery", "Entities", "d1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected table output to contain %q, got %q", want, out)
		}
	}
}

func TestE2E_ConfigInitAndShow(t *testing.T) {
	out, _, code := runGraphlens(t, "config", "init")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "config.toml") {
		t.Errorf("expected config path in output, got %q", out)
	}

	out, _, code = runGraphlens(t, "config", "show", "--api-key", "secret")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if strings.Contains(out, "secret") {
		t.Error("config show printed the API key")
	}
	if !strings.Contains(out, "batch_size = 10") {
		t.Errorf("expected defaults in config show, got %q", out)
	}
}

func TestE2E_CompletionZsh(t *testing.T) {
	out, _, code := runGraphlens(t, "completion", "zsh")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "graphlens") {
		t.Errorf("expected zsh completion script, got %q", out[:min(len(out), 200)])
	}
}
