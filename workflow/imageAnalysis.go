package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/models"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
)

const defaultImageAnalysisTimeout = 5 * time.Second

var imageHTTPClient = &http.Client{Timeout: defaultImageAnalysisTimeout}

type imageAnalysisRequest struct {
	ObjectKey   string `json:"object_key"`
	ContentType string `json:"content_type,omitempty"`
}

// AnalyzePhoto asks the image analysis dependency for a quality summary of an
// uploaded photo. Advisory only; failures leave the photo pending analysis.
func AnalyzePhoto(ctx context.Context, objectKey, contentType string) (*models.PhotoAnalysis, error) {
	url := os.Getenv("IMAGE_ANALYSIS_URL")
	if url == "" {
		return nil, &utils.DependencyUnavailableError{Dependency: "image-analysis", Err: fmt.Errorf("IMAGE_ANALYSIS_URL not set")}
	}

	body, err := json.Marshal(imageAnalysisRequest{ObjectKey: objectKey, ContentType: contentType})
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultImageAnalysisTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := imageHTTPClient.Do(req)
	if err != nil {
		return nil, &utils.DependencyUnavailableError{Dependency: "image-analysis", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &utils.DependencyUnavailableError{
			Dependency: "image-analysis",
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var analysis models.PhotoAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return nil, &utils.DependencyUnavailableError{Dependency: "image-analysis", Err: err}
	}
	return &analysis, nil
}
