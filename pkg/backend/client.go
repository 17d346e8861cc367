// Package backend is the editor's client to the annotation service: JSON
// persistence calls plus the realtime channel carrying dataset item updates.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/annolab/workview/pkg/annotation"
	"github.com/cyclopcam/logs"
)

// Item is a dataset item: one unit of annotatable content with its slots.
type Item struct {
	ID        string `json:"id"`
	DatasetID int64  `json:"dataset_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Slots     []Slot `json:"slots"`
}

// Slot is one media file inside an item.
type Slot struct {
	SlotName    string  `json:"slot_name"`
	FilePath    string  `json:"file_path"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	TotalFrames int     `json:"total_frames"`
	NativeFPS   float32 `json:"fps"`
}

// IsVideo reports whether the slot holds multi-frame content.
func (s *Slot) IsVideo() bool { return s.TotalFrames > 1 }

// Client talks JSON to the annotation service.
type Client struct {
	Log     logs.Log
	BaseURL string
	HTTP    *http.Client
}

func NewClient(log logs.Log, baseURL string) *Client {
	return &Client{
		Log:     log,
		BaseURL: baseURL,
		HTTP:    http.DefaultClient,
	}
}

// errorBody is the service's structured error envelope.
type errorBody struct {
	Errors struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// requestJSON performs one JSON round trip. Non-2xx responses are decoded
// into an APIError so callers can classify them.
func requestJSON[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	var reader io.Reader
	if body != nil {
		bodyB, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(bodyB)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(msg)}
		var envelope errorBody
		if json.Unmarshal(msg, &envelope) == nil && envelope.Errors.Code != "" {
			apiErr.Code = envelope.Errors.Code
			apiErr.Message = envelope.Errors.Message
		}
		return nil, apiErr
	}
	var responseObj T
	if err := json.NewDecoder(resp.Body).Decode(&responseObj); err != nil {
		return nil, fmt.Errorf("%v: %w", resp.Status, err)
	}
	return &responseObj, nil
}

func (c *Client) ListItems(ctx context.Context, datasetID int64) ([]*Item, error) {
	resp, err := requestJSON[[]*Item](ctx, c, "GET", fmt.Sprintf("/api/datasets/%v/items", datasetID), nil)
	if err != nil {
		return nil, fmt.Errorf("list items of dataset %v: %w", datasetID, err)
	}
	return *resp, nil
}

func (c *Client) LoadAnnotations(ctx context.Context, itemID string) ([]*annotation.Payload, error) {
	resp, err := requestJSON[[]*annotation.Payload](ctx, c, "GET", "/api/items/"+itemID+"/annotations", nil)
	if err != nil {
		return nil, fmt.Errorf("load annotations of item %v: %w", itemID, err)
	}
	return *resp, nil
}

// CreateAnnotation persists a new annotation and returns the stored payload.
// The id the client generated is kept by the service.
func (c *Client) CreateAnnotation(ctx context.Context, itemID string, p *annotation.Payload) (*annotation.Payload, error) {
	return requestJSON[annotation.Payload](ctx, c, "POST", "/api/items/"+itemID+"/annotations", p)
}

func (c *Client) UpdateAnnotation(ctx context.Context, p *annotation.Payload) (*annotation.Payload, error) {
	return requestJSON[annotation.Payload](ctx, c, "PUT", "/api/annotations/"+p.ID, p)
}

func (c *Client) DeleteAnnotation(ctx context.Context, id string) error {
	_, err := requestJSON[struct{}](ctx, c, "DELETE", "/api/annotations/"+id, nil)
	return err
}

// GetVariable reads a persisted user preference. A missing key returns
// ("", nil).
func (c *Client) GetVariable(ctx context.Context, key string) (string, error) {
	resp, err := requestJSON[struct {
		Value string `json:"value"`
	}](ctx, c, "GET", "/api/variables/"+key, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	return resp.Value, nil
}

func (c *Client) SetVariable(ctx context.Context, key, value string) error {
	_, err := requestJSON[struct{}](ctx, c, "PUT", "/api/variables/"+key, map[string]string{"value": value})
	return err
}
