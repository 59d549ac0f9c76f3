package detectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestModelDetector_Detect(t *testing.T) {
	var received modelDetectRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/detect" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entities":[
			{"text":"Barack Obama","label":"PERSON","start_pos":0,"end_pos":12,"confidence":0.98},
			{"text":"hawaii","label":"GPE","start_pos":25,"end_pos":31,"confidence":0.91}
		]}`))
	}))
	defer server.Close()

	detector := NewModelDetector(server.URL+"/", nil)
	text := "Barack Obama was born in Hawaii."

	output, err := detector.Detect(context.Background(), DetectorInput{Text: text})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if received.Text != text {
		t.Errorf("Expected server to receive %q, got %q", text, received.Text)
	}
	if len(output.Entities) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(output.Entities))
	}
	// Text is re-sliced from the input, so casing follows the input
	if output.Entities[1].Text != "Hawaii" {
		t.Errorf("Expected entity text from input, got %q", output.Entities[1].Text)
	}
	if output.Entities[0].Confidence != 0.98 {
		t.Errorf("Expected confidence 0.98, got %v", output.Entities[0].Confidence)
	}
}

func TestModelDetector_EmptyInputSkipsServer(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	output, err := NewModelDetector(server.URL, nil).Detect(context.Background(), DetectorInput{Text: ""})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if called {
		t.Error("Expected no request for empty input")
	}
	if output.Entities == nil || len(output.Entities) != 0 {
		t.Errorf("Expected empty entities, got %#v", output.Entities)
	}
}

func TestModelDetector_Errors(t *testing.T) {
	testCases := []struct {
		name      string
		status    int
		body      string
		errSubstr string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", errSubstr: "status 500: boom"},
		{name: "bad json", status: http.StatusOK, body: "{", errSubstr: "failed to decode"},
		{name: "span out of range", status: http.StatusOK, body: `{"entities":[{"text":"x","label":"X","start_pos":2,"end_pos":99}]}`, errSubstr: "invalid span"},
		{name: "empty span", status: http.StatusOK, body: `{"entities":[{"text":"","label":"X","start_pos":2,"end_pos":2}]}`, errSubstr: "invalid span"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewModelDetector(server.URL, nil).Detect(context.Background(), DetectorInput{Text: "some input"})
			if err == nil || !strings.Contains(err.Error(), tc.errSubstr) {
				t.Errorf("Expected error containing %q, got %v", tc.errSubstr, err)
			}
		})
	}
}

func TestModelDetector_GetNameAndClose(t *testing.T) {
	detector := NewModelDetector("http://localhost:8001", nil)
	if detector.GetName() != "model_detector" {
		t.Errorf("Expected name 'model_detector', got '%s'", detector.GetName())
	}
	if err := detector.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
