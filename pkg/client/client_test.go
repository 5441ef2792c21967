package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(Config{BaseURL: ts.URL})
}

func TestClient_CreateSubmission(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/submissions/" {
			t.Errorf("Expected path /submissions/, got %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %q", ct)
		}

		var req SubmissionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.SourceCode != "print('hi')" || req.LanguageID != 1 {
			t.Errorf("Unexpected request: %+v", req)
		}

		json.NewEncoder(w).Encode(map[string]string{"id": "f2a4c283-66c2-43a2-a520-b861ae155e09"})
	})

	id, err := client.CreateSubmission(context.Background(), SubmissionRequest{
		SourceCode: "print('hi')",
		LanguageID: 1,
	})
	if err != nil {
		t.Fatalf("CreateSubmission failed: %v", err)
	}
	if id != "f2a4c283-66c2-43a2-a520-b861ae155e09" {
		t.Errorf("Unexpected id: %s", id)
	}
}

func TestClient_CreateSubmission_Error(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Language with ID 99 is not supported."})
	})

	_, err := client.CreateSubmission(context.Background(), SubmissionRequest{
		SourceCode: "x",
		LanguageID: 99,
	})
	if err == nil {
		t.Fatal("Expected an error")
	}
	want := "400 Bad Request: Language with ID 99 is not supported."
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}

func TestClient_CreateSubmissionWait(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "wait=true" {
			t.Errorf("Expected wait=true, got %q", r.URL.RawQuery)
		}
		stdout := "hi\n"
		json.NewEncoder(w).Encode(Submission{
			ID:     "sub-1",
			Status: "FINISHED",
			Stdout: &stdout,
		})
	})

	sub, err := client.CreateSubmissionWait(context.Background(), SubmissionRequest{
		SourceCode: "print('hi')",
		LanguageID: 1,
	})
	if err != nil {
		t.Fatalf("CreateSubmissionWait failed: %v", err)
	}
	if sub.Status != "FINISHED" {
		t.Errorf("Expected status FINISHED, got %s", sub.Status)
	}
	if sub.Stdout == nil || *sub.Stdout != "hi\n" {
		t.Errorf("Expected stdout, got %v", sub.Stdout)
	}
}

func TestClient_CreateSubmissionBatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/submissions/batch" {
			t.Errorf("Expected path /submissions/batch, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]map[string]string{{"id": "a"}, {"id": "b"}})
	})

	ids, err := client.CreateSubmissionBatch(context.Background(), []SubmissionRequest{
		{SourceCode: "print(1)", LanguageID: 1},
		{SourceCode: "print(2)", LanguageID: 1},
	})
	if err != nil {
		t.Fatalf("CreateSubmissionBatch failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("Unexpected ids: %v", ids)
	}
}

func TestClient_GetSubmission(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/submissions/sub-1" {
			t.Errorf("Expected path /submissions/sub-1, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("fields"); got != "stdout,status" {
			t.Errorf("Expected fields stdout,status, got %q", got)
		}
		json.NewEncoder(w).Encode(Submission{ID: "sub-1", Status: "PROCESSING"})
	})

	sub, err := client.GetSubmission(context.Background(), "sub-1", "stdout,status")
	if err != nil {
		t.Fatalf("GetSubmission failed: %v", err)
	}
	if sub.Status != "PROCESSING" {
		t.Errorf("Expected status PROCESSING, got %s", sub.Status)
	}
}

func TestClient_ListSubmissions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("page_size") != "5" {
			t.Errorf("Unexpected paging: %v", q)
		}
		json.NewEncoder(w).Encode(SubmissionPage{
			Items:       []Submission{{ID: "a"}, {ID: "b"}},
			TotalItems:  12,
			TotalPages:  3,
			CurrentPage: 2,
			PageSize:    5,
		})
	})

	page, err := client.ListSubmissions(context.Background(), ListFilter{Page: 2, PageSize: 5})
	if err != nil {
		t.Fatalf("ListSubmissions failed: %v", err)
	}
	if page.TotalItems != 12 || page.TotalPages != 3 {
		t.Errorf("Unexpected page info: %+v", page)
	}
	if len(page.Items) != 2 {
		t.Errorf("Expected 2 items, got %d", len(page.Items))
	}
}

func TestClient_DeleteSubmission(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("Expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.DeleteSubmission(context.Background(), "sub-1"); err != nil {
		t.Fatalf("DeleteSubmission failed: %v", err)
	}
}

func TestClient_DeleteSubmission_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Submission not found"})
	})

	err := client.DeleteSubmission(context.Background(), "sub-1")
	if err == nil {
		t.Fatal("Expected an error")
	}
	want := "404 Not Found: Submission not found"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}

func TestClient_ListLanguages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/languages/" {
			t.Errorf("Expected path /languages/, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]LanguageSummary{
			{ID: 1, Name: "Python", Version: "3.13"},
			{ID: 2, Name: "JavaScript", Version: "Node.js 20"},
		})
	})

	langs, err := client.ListLanguages(context.Background())
	if err != nil {
		t.Fatalf("ListLanguages failed: %v", err)
	}
	if len(langs) != 2 || langs[0].Name != "Python" {
		t.Errorf("Unexpected languages: %v", langs)
	}
}

func TestClient_GetLanguage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/languages/1" {
			t.Errorf("Expected path /languages/1, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Language{
			ID:         1,
			Name:       "Python",
			Version:    "3.13",
			RunCommand: "/usr/local/bin/python3 main.py",
		})
	})

	lang, err := client.GetLanguage(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetLanguage failed: %v", err)
	}
	if lang.RunCommand != "/usr/local/bin/python3 main.py" {
		t.Errorf("Unexpected language: %+v", lang)
	}
}

func TestClient_Health(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Health{
			Status:  "degraded",
			Version: "1.0.0",
			Workers: WorkerHealth{QueueName: "submissions", Status: "high_load"},
		})
	})

	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Status != "degraded" {
		t.Errorf("Expected degraded, got %s", health.Status)
	}
	if health.Workers.Status != "high_load" {
		t.Errorf("Expected high_load workers, got %s", health.Workers.Status)
	}
}

func TestClient_Info(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health/info" {
			t.Errorf("Expected path /health/info, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(SystemInfo{
			APIVersion:              "1.0.0",
			Environment:             "production",
			SupportedLanguagesCount: 12,
		})
	})

	info, err := client.Info(context.Background())
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.APIVersion != "1.0.0" || info.SupportedLanguagesCount != 12 {
		t.Errorf("Unexpected info: %+v", info)
	}
}

func TestClient_ParseError_PlainBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	})

	_, err := client.GetSubmission(context.Background(), "sub-1", "")
	if err == nil {
		t.Fatal("Expected an error")
	}
	want := "502 Bad Gateway: upstream unavailable"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}
