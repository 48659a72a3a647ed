package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	defaultAPIBase = "http://localhost:8080"
	pollTimeout    = 3 * time.Minute
)

var (
	apiBase    string
	token      string
	smokeFile  string
	client     = &http.Client{Timeout: 30 * time.Second}
	createdIDs = make(map[string]string)
)

func main() {
	fmt.Println("=== Informes Hub E2E Smoke Test ===")
	fmt.Println()

	apiBase = getEnv("API_BASE_URL", defaultAPIBase)
	smokeFile = getEnv("SMOKE_FILE", "")

	fmt.Printf("API Base: %s\n", apiBase)
	fmt.Printf("File: %s\n", nonEmpty(smokeFile, "(not set, demo only)"))
	fmt.Println()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"Healthz", testHealthz},
		{"Readiness", testReadiness},
		{"Open Session", testOpenSession},
		{"Check Connectivity", testCheckConnectivity},
		{"Reject Wrong File Type", testRejectWrongType},
		{"Submit File", testSubmitFile},
		{"Submit Demo", testSubmitDemo},
		{"Get Report", testGetReport},
		{"Set Title", testSetTitle},
		{"Create Export (JSON)", testCreateExport},
		{"Download Export", testDownloadExport},
		{"Close Session", testCloseSession},
	}

	failed := false
	for i, step := range steps {
		fmt.Printf("[%d/%d] %s... ", i+1, len(steps), step.name)
		if err := step.fn(); err != nil {
			fmt.Printf("❌ FAILED\n")
			fmt.Printf("  Error: %v\n\n", err)
			failed = true
			break
		}
		fmt.Printf("✅ OK\n")
	}

	fmt.Println()
	if failed {
		fmt.Println("❌ SMOKE TEST FAILED")
		os.Exit(1)
	}

	fmt.Println("✅ ALL SMOKE TESTS PASSED")
}

func testHealthz() error {
	resp, err := doJSON("GET", "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, http.StatusOK)
}

func testReadiness() error {
	resp, err := doJSON("GET", "/health/readiness", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, http.StatusOK)
}

func testOpenSession() error {
	resp, err := doJSON("POST", "/v1/sessions", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusCreated); err != nil {
		return err
	}

	var out struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Token == "" {
		return fmt.Errorf("no token in response")
	}
	token = out.Token
	createdIDs["session"] = out.SessionID
	return nil
}

func testCheckConnectivity() error {
	resp, err := doJSON("POST", "/v1/connectivity/check", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	var out struct {
		Status string `json:"status"`
		Label  string `json:"label"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Status != "connected" {
		return fmt.Errorf("backend not connected: %s", out.Label)
	}
	return nil
}

func testRejectWrongType() error {
	resp, err := upload("reporte.pdf", []byte("%PDF-1.4 smoke"))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusUnprocessableEntity); err != nil {
		return err
	}

	// the rejected file must not be submittable
	sub, err := doJSON("POST", "/v1/submissions", map[string]string{"kind": "file"})
	if err != nil {
		return err
	}
	defer sub.Body.Close()
	return expectStatus(sub, http.StatusBadRequest)
}

func testSubmitFile() error {
	if smokeFile == "" {
		return nil
	}
	data, err := os.ReadFile(smokeFile)
	if err != nil {
		return fmt.Errorf("failed to read SMOKE_FILE: %w", err)
	}

	resp, err := upload(filepath.Base(smokeFile), data)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	return submitAndWait(map[string]string{
		"kind":       "file",
		"supervisor": "smoke",
		"project":    "smoke",
	})
}

func testSubmitDemo() error {
	return submitAndWait(map[string]string{"kind": "demo"})
}

func testGetReport() error {
	resp, err := doJSON("GET", "/v1/report", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	var view struct {
		Empty    bool              `json:"empty"`
		Sections []json.RawMessage `json:"sections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if view.Empty {
		return fmt.Errorf("report is empty after a successful submission")
	}
	return nil
}

func testSetTitle() error {
	resp, err := doJSON("PUT", "/v1/report/title", map[string]string{"title": "Informe Smoke " + time.Now().Format("2006-01-02")})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, http.StatusOK)
}

func testCreateExport() error {
	resp, err := doJSON("POST", "/v1/report/exports", map[string]string{"format": "json"})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusCreated); err != nil {
		return err
	}

	var out struct {
		ID       string `json:"id"`
		FileName string `json:"file_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if out.ID == "" {
		return fmt.Errorf("no export ID in response")
	}
	createdIDs["export"] = out.ID
	return nil
}

func testDownloadExport() error {
	exportID := createdIDs["export"]
	if exportID == "" {
		return fmt.Errorf("no export ID to download")
	}

	noRedirect := &http.Client{
		Timeout: client.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequest("GET", fmt.Sprintf("%s/v1/exports/%s/download", apiBase, exportID), nil)
	if err != nil {
		return err
	}
	addAuth(req)

	resp, err := noRedirect.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return checkBody(resp.Body)
	case http.StatusFound:
		// S3 mode
		location := resp.Header.Get("Location")
		if location == "" {
			return fmt.Errorf("redirect without Location header")
		}
		getResp, err := client.Get(location)
		if err != nil {
			return fmt.Errorf("failed to follow redirect: %w", err)
		}
		defer getResp.Body.Close()
		if err := expectStatus(getResp, http.StatusOK); err != nil {
			return err
		}
		return checkBody(getResp.Body)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("unexpected status=%d body=%s", resp.StatusCode, string(body))
}

func testCloseSession() error {
	resp, err := doJSON("DELETE", "/v1/sessions/current", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, http.StatusNoContent)
}

func submitAndWait(payload map[string]string) error {
	resp, err := doJSON("POST", "/v1/submissions", payload)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if err := expectStatus(resp, http.StatusAccepted); err != nil {
		return err
	}

	deadline := time.Now().Add(pollTimeout)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)

		resp, err := doJSON("GET", "/v1/submission", nil)
		if err != nil {
			return err
		}
		var snap struct {
			Phase string `json:"phase"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		err = json.NewDecoder(resp.Body).Decode(&snap)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode submission: %w", err)
		}

		switch snap.Phase {
		case "succeeded":
			return nil
		case "failed":
			if snap.Error != nil {
				return fmt.Errorf("submission failed: %s", snap.Error.Message)
			}
			return fmt.Errorf("submission failed")
		}
	}
	return fmt.Errorf("submission did not finish within %s", pollTimeout)
}

// Helper functions

func doJSON(method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, apiBase+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	addAuth(req)
	return client.Do(req)
}

func upload(name string, data []byte) (*http.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	_ = mw.WriteField("origin", "picker")
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", apiBase+"/v1/intake", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	addAuth(req)
	return client.Do(req)
}

func expectStatus(resp *http.Response, want int) error {
	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

func checkBody(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) < 10 {
		return fmt.Errorf("export too small: %d bytes", len(data))
	}
	return nil
}

func addAuth(req *http.Request) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
