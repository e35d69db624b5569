// Package tagging drives the external fashion-attribute service over the
// records queued for tagging and writes the normalized payload back.
package tagging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"trendgallery/models"
)

const (
	requestTimeout = 60 * time.Second
	maxAttempts    = 3
	retryPause     = 2 * time.Second

	// Batch pacing: a short sleep every few requests keeps the upstream
	// service from rate-limiting a large run.
	paceEvery = 5
	paceSleep = 2 * time.Second

	// Objects and tags below this confidence are dropped during
	// normalization.
	minConfidence = 0.05
)

// RawObject is one detected object as the service returns it, before
// normalization. Kept only in memory; the stored payload is the
// normalized form.
type RawObject struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	TopCategory string              `json:"Top Category"`
	BoundBox    []int               `json:"bound_box"`
	Prob        float64             `json:"prob"`
	Area        float64             `json:"area"`
	Tags        map[string][]RawTag `json:"_tags"`
}

// RawTag is one entry of a tag group.
type RawTag struct {
	Name string  `json:"name"`
	Prob float64 `json:"prob"`
	ID   string  `json:"id"`
}

type detectRequest struct {
	Records []detectRecord `json:"records"`
}

type detectRecord struct {
	ID  string `json:"_id"`
	URL string `json:"_url"`
}

type detectResponse struct {
	Records []struct {
		Objects []RawObject `json:"_objects"`
	} `json:"records"`
}

// Client calls the tagging service, one image per request.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewClient(endpoint, token string) *Client {
	return &Client{
		endpoint:   endpoint,
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// DetectTags submits one image URL and returns the detected objects.
// Transient failures are retried up to maxAttempts with a fixed pause.
func (c *Client) DetectTags(ctx context.Context, id, url string) ([]RawObject, error) {
	body, err := json.Marshal(detectRequest{Records: []detectRecord{{ID: id, URL: url}}})
	if err != nil {
		return nil, fmt.Errorf("marshal tagger request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(retryPause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		objects, err := c.detectOnce(ctx, body)
		if err == nil {
			return objects, nil
		}
		lastErr = err
		log.Printf("tagging: attempt %d/%d for %s: %v", attempt, maxAttempts, id, err)
	}
	return nil, lastErr
}

func (c *Client) detectOnce(ctx context.Context, body []byte) ([]RawObject, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tagger status %d: %s", resp.StatusCode, msg)
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode tagger response: %w", err)
	}
	if len(decoded.Records) == 0 {
		return nil, errors.New("tagger returned no records")
	}
	return decoded.Records[0].Objects, nil
}

// groupKeywords routes a tag-group name into one of the known attribute
// slots. Matched case-insensitively by substring; first hit wins.
var groupKeywords = []struct {
	slot     string
	keywords []string
}{
	{"Subcategory", []string{"subcategory"}},
	{"Category", []string{"category"}},
	{"Color", []string{"color", "colour", "hue", "shade", "tone"}},
	{"Material", []string{"material", "fabric", "textile", "leather", "cotton", "silk", "wool"}},
	{"Style", []string{"style", "fashion", "trend", "design", "cut", "fit", "silhouette"}},
}

func routeGroup(name string) string {
	lower := strings.ToLower(name)
	for _, g := range groupKeywords {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				return g.slot
			}
		}
	}
	return "Other"
}

// Normalize turns the service's raw objects into the stored payload:
// low-confidence objects and tags are dropped, groups are routed into
// the known attribute slots and tag order inside a group is preserved
// (the first element stays the canonical one).
func Normalize(objects []RawObject) []models.TaggedObject {
	out := make([]models.TaggedObject, 0, len(objects))
	for _, obj := range objects {
		if obj.Prob < minConfidence {
			continue
		}
		norm := models.TaggedObject{
			TopCategory: obj.TopCategory,
			Name:        obj.Name,
			Confidence:  obj.Prob,
			BoundBox:    obj.BoundBox,
		}

		// Stable group order: two raw groups can land in the same slot,
		// and the stored payload must not depend on map iteration.
		groups := make([]string, 0, len(obj.Tags))
		for group := range obj.Tags {
			groups = append(groups, group)
		}
		sort.Strings(groups)

		for _, group := range groups {
			rawTags := obj.Tags[group]
			var tags []models.AttributeTag
			for _, t := range rawTags {
				if t.Prob < minConfidence {
					continue
				}
				tags = append(tags, models.AttributeTag{Name: t.Name, Confidence: t.Prob})
			}
			if len(tags) == 0 {
				continue
			}

			switch routeGroup(group) {
			case "Subcategory":
				norm.Subcategory = append(norm.Subcategory, tags...)
			case "Category":
				norm.Category = append(norm.Category, tags...)
			case "Color":
				norm.Color = append(norm.Color, tags...)
			case "Material":
				norm.Material = append(norm.Material, tags...)
			case "Style":
				norm.Style = append(norm.Style, tags...)
			default:
				if norm.Other == nil {
					norm.Other = make(map[string][]models.AttributeTag)
				}
				norm.Other[group] = append(norm.Other[group], tags...)
			}
		}
		out = append(out, norm)
	}
	return out
}

// TagStore is the slice of the image store the runner needs.
type TagStore interface {
	FindSelectedForTagging(ctx context.Context, limit int64) ([]models.ImageRecord, error)
	WriteTagPayload(ctx context.Context, id bson.ObjectID, objects []models.TaggedObject, taggedAt time.Time) error
	WriteTagError(ctx context.Context, id bson.ObjectID, msg string) error
}

// BatchSummary is the outcome of one TagSelected run.
type BatchSummary struct {
	Tagged int `json:"tagged"`
	Failed int `json:"failed"`
}

// Runner tags every record queued for tagging, strictly in sequence.
type Runner struct {
	store  TagStore
	client *Client

	// publicBaseURL is the prefix under which the stored image bytes are
	// reachable by the tagging service, e.g. "http://203.0.113.7:8080".
	publicBaseURL string

	// pause is swapped out in tests.
	pause func(time.Duration)
}

func NewRunner(store TagStore, client *Client, publicBaseURL string) *Runner {
	return &Runner{
		store:         store,
		client:        client,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		pause:         time.Sleep,
	}
}

// TagSelected processes up to limit queued records (zero means all).
// Per-record failures are persisted as tagging_error and never abort the
// batch; the payload write clears the queued flag either way.
func (r *Runner) TagSelected(ctx context.Context, limit int64) (BatchSummary, error) {
	var sum BatchSummary

	records, err := r.store.FindSelectedForTagging(ctx, limit)
	if err != nil {
		return sum, fmt.Errorf("load tagging queue: %w", err)
	}
	log.Printf("tagging: %d records queued", len(records))

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if i > 0 && i%paceEvery == 0 {
			r.pause(paceSleep)
		}

		url := fmt.Sprintf("%s/images/%s", r.publicBaseURL, rec.LocalName)
		objects, err := r.client.DetectTags(ctx, rec.ID.Hex(), url)
		if err != nil {
			sum.Failed++
			if werr := r.store.WriteTagError(ctx, rec.ID, err.Error()); werr != nil {
				log.Printf("tagging: persist error for %s: %v", rec.ID.Hex(), werr)
			}
			continue
		}

		if err := r.store.WriteTagPayload(ctx, rec.ID, Normalize(objects), time.Now()); err != nil {
			sum.Failed++
			log.Printf("tagging: write payload for %s: %v", rec.ID.Hex(), err)
			continue
		}
		sum.Tagged++
	}

	log.Printf("tagging: tagged=%d failed=%d", sum.Tagged, sum.Failed)
	return sum, nil
}
