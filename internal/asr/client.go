package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// JobStatus is the polled state of an ASR job.
type JobStatus struct {
	Status     string // "queued", "processing", "completed", "error"
	Text       string
	Utterances []Utterance
	ErrorMsg   string
}

// Utterance is one speaker-attributed segment of a completed transcript.
type Utterance struct {
	Speaker string
	Text    string
}

// JobOptions configures the ASR job per spec.md §4.6 step 2.
type JobOptions struct {
	SpeakerLabels bool
	Punctuation   bool
	AutoLanguage  bool
}

// Client talks to the external ASR HTTP service.
type Client interface {
	CreateJob(ctx context.Context, audioPath string, opts JobOptions) (jobID string, err error)
	PollJob(ctx context.Context, jobID string) (JobStatus, error)
}

// HTTPClient is a gjson-parsed REST client for an AssemblyAI-style ASR API.
type HTTPClient struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
}

func (c *HTTPClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// CreateJob uploads the audio file and creates a transcription job,
// returning the job ID to poll.
func (c *HTTPClient) CreateJob(ctx context.Context, audioPath string, opts JobOptions) (string, error) {
	uploadURL, err := c.upload(ctx, audioPath)
	if err != nil {
		return "", err
	}

	payload := map[string]interface{}{
		"audio_url":          uploadURL,
		"speaker_labels":     opts.SpeakerLabels,
		"punctuate":          opts.Punctuation,
		"language_detection": opts.AutoLanguage,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("asr: create job returned status %d: %s", resp.StatusCode, string(respBody))
	}

	id := gjson.GetBytes(respBody, "id").String()
	if id == "" {
		return "", fmt.Errorf("asr: create job response missing id")
	}
	return id, nil
}

func (c *HTTPClient) upload(ctx context.Context, audioPath string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("asr: upload returned status %d: %s", resp.StatusCode, string(respBody))
	}

	url := gjson.GetBytes(respBody, "upload_url").String()
	if url == "" {
		return "", fmt.Errorf("asr: upload response missing upload_url")
	}
	return url, nil
}

// PollJob fetches the current status of a job.
func (c *HTTPClient) PollJob(ctx context.Context, jobID string) (JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v2/transcript/"+jobID, nil)
	if err != nil {
		return JobStatus{}, err
	}
	req.Header.Set("Authorization", c.APIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return JobStatus{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return JobStatus{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return JobStatus{}, fmt.Errorf("asr: poll returned status %d: %s", resp.StatusCode, string(body))
	}

	parsed := gjson.ParseBytes(body)
	status := JobStatus{
		Status:   parsed.Get("status").String(),
		Text:     parsed.Get("text").String(),
		ErrorMsg: parsed.Get("error").String(),
	}

	utterances := parsed.Get("utterances")
	if utterances.IsArray() {
		utterances.ForEach(func(_, value gjson.Result) bool {
			status.Utterances = append(status.Utterances, Utterance{
				Speaker: value.Get("speaker").String(),
				Text:    value.Get("text").String(),
			})
			return true
		})
	}

	return status, nil
}
