package tagging_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"trendgallery/models"
	"trendgallery/tagging"
)

const sampleResponse = `{"records":[{"_objects":[{
	"id":"obj1",
	"name":"baguette bags",
	"Top Category":"Accessories",
	"bound_box":[10,20,110,220],
	"prob":0.93,
	"_tags":{
		"Subcategory":[{"name":"baguette bags","prob":0.91}],
		"Category":[{"name":"bags","prob":0.95}],
		"Color":[{"name":"brown","prob":0.8},{"name":"black","prob":0.6},{"name":"mauve","prob":0.01}],
		"Material Composition":[{"name":"leather","prob":0.7}],
		"Occasion":[{"name":"casual","prob":0.5}]
	}
}]}]}`

func TestDetectTagsRequestAndDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		recs := req["records"].([]any)
		rec := recs[0].(map[string]any)
		if rec["_id"] != "id1" || rec["_url"] != "http://host/images/a.jpg" {
			t.Errorf("unexpected record: %v", rec)
		}
		if got := r.Header.Get("Authorization"); got != "Token tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := tagging.NewClient(srv.URL, "tok")
	objects, err := c.DetectTags(context.Background(), "id1", "http://host/images/a.jpg")
	if err != nil {
		t.Fatalf("DetectTags: %v", err)
	}
	if len(objects) != 1 || objects[0].TopCategory != "Accessories" {
		t.Fatalf("unexpected objects: %+v", objects)
	}
	if objects[0].Prob != 0.93 || len(objects[0].BoundBox) != 4 {
		t.Errorf("object fields not decoded: %+v", objects[0])
	}
}

func TestDetectTagsRetriesThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := tagging.NewClient(srv.URL, "")
	if _, err := c.DetectTags(context.Background(), "id1", "http://host/images/a.jpg"); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestNormalizeRoutesGroups(t *testing.T) {
	var decoded struct {
		Records []struct {
			Objects []tagging.RawObject `json:"_objects"`
		} `json:"records"`
	}
	if err := json.Unmarshal([]byte(sampleResponse), &decoded); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	objects := tagging.Normalize(decoded.Records[0].Objects)
	if len(objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(objects))
	}
	obj := objects[0]

	if obj.TopCategory != "Accessories" || obj.Name != "baguette bags" {
		t.Errorf("object identity lost: %+v", obj)
	}
	if len(obj.Subcategory) != 1 || obj.Subcategory[0].Name != "baguette bags" {
		t.Errorf("unexpected subcategory: %+v", obj.Subcategory)
	}
	if len(obj.Category) != 1 || obj.Category[0].Name != "bags" {
		t.Errorf("unexpected category: %+v", obj.Category)
	}
	// "mauve" at prob 0.01 is below the confidence floor.
	if len(obj.Color) != 2 || obj.Color[0].Name != "brown" || obj.Color[1].Name != "black" {
		t.Errorf("unexpected colors: %+v", obj.Color)
	}
	// "Material Composition" routes by keyword into Material.
	if len(obj.Material) != 1 || obj.Material[0].Name != "leather" {
		t.Errorf("unexpected material: %+v", obj.Material)
	}
	// "Occasion" matches nothing and lands in Other.
	if got := obj.Other["Occasion"]; len(got) != 1 || got[0].Name != "casual" {
		t.Errorf("unexpected other: %+v", obj.Other)
	}
}

func TestNormalizeDropsLowConfidenceObjects(t *testing.T) {
	raw := []tagging.RawObject{
		{
			Name:        "handbag",
			TopCategory: "Accessories",
			Prob:        0.88,
			Tags: map[string][]tagging.RawTag{
				"Color": {{Name: "brown", Prob: 0.8}},
			},
		},
		{
			// A stray detection well below the floor must not reach the
			// stored payload, however confident its tags are.
			Name:        "ghost dress",
			TopCategory: "Clothing",
			Prob:        0.01,
			Tags: map[string][]tagging.RawTag{
				"Subcategory": {{Name: "dresses", Prob: 0.97}},
				"Color":       {{Name: "red", Prob: 0.95}},
			},
		},
	}

	objects := tagging.Normalize(raw)
	if len(objects) != 1 {
		t.Fatalf("expected 1 object, got %d: %+v", len(objects), objects)
	}
	if objects[0].Name != "handbag" {
		t.Fatalf("wrong object survived: %+v", objects[0])
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	raw := []tagging.RawObject{{
		Name:        "dress",
		TopCategory: "Clothing",
		Prob:        0.9,
		Tags: map[string][]tagging.RawTag{
			"Color":      {{Name: "red", Prob: 0.8}},
			"Hue family": {{Name: "warm", Prob: 0.6}},
		},
	}}

	first := tagging.Normalize(raw)
	for i := 0; i < 20; i++ {
		if got := tagging.Normalize(raw); !reflect.DeepEqual(got, first) {
			t.Fatalf("normalization not deterministic: %+v vs %+v", got, first)
		}
	}
	// Both groups route to Color; sorted group order puts "Color" first.
	if colors := first[0].Color; len(colors) != 2 || colors[0].Name != "red" {
		t.Fatalf("unexpected merged colors: %+v", colors)
	}
}

type fakeTagStore struct {
	queued   []models.ImageRecord
	payloads map[string][]models.TaggedObject
	errs     map[string]string
}

func newFakeTagStore(queued ...models.ImageRecord) *fakeTagStore {
	return &fakeTagStore{
		queued:   queued,
		payloads: map[string][]models.TaggedObject{},
		errs:     map[string]string{},
	}
}

func (f *fakeTagStore) FindSelectedForTagging(ctx context.Context, limit int64) ([]models.ImageRecord, error) {
	if limit > 0 && int64(len(f.queued)) > limit {
		return f.queued[:limit], nil
	}
	return f.queued, nil
}

func (f *fakeTagStore) WriteTagPayload(ctx context.Context, id bson.ObjectID, objects []models.TaggedObject, taggedAt time.Time) error {
	f.payloads[id.Hex()] = objects
	return nil
}

func (f *fakeTagStore) WriteTagError(ctx context.Context, id bson.ObjectID, msg string) error {
	f.errs[id.Hex()] = msg
	return nil
}

func TestTagSelected(t *testing.T) {
	var urls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Records []struct {
				URL string `json:"_url"`
			} `json:"records"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		urls = append(urls, req.Records[0].URL)
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	good := models.ImageRecord{ID: bson.NewObjectID(), LocalName: "p1_main_0001.jpg"}
	store := newFakeTagStore(good)

	r := tagging.NewRunner(store, tagging.NewClient(srv.URL, ""), "http://203.0.113.7:8080/")
	sum, err := r.TagSelected(context.Background(), 0)
	if err != nil {
		t.Fatalf("TagSelected: %v", err)
	}
	if sum.Tagged != 1 || sum.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if urls[0] != "http://203.0.113.7:8080/images/p1_main_0001.jpg" {
		t.Errorf("unexpected public url %q", urls[0])
	}
	if len(store.payloads[good.ID.Hex()]) != 1 {
		t.Errorf("payload not written")
	}
}

func TestTagSelectedPersistsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusBadRequest)
	}))
	defer srv.Close()

	rec := models.ImageRecord{ID: bson.NewObjectID(), LocalName: "a.jpg"}
	store := newFakeTagStore(rec)

	r := tagging.NewRunner(store, tagging.NewClient(srv.URL, ""), "http://host")
	sum, err := r.TagSelected(context.Background(), 0)
	if err != nil {
		t.Fatalf("TagSelected: %v", err)
	}
	if sum.Failed != 1 || sum.Tagged != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if store.errs[rec.ID.Hex()] == "" {
		t.Error("tagging error not persisted")
	}
	if len(store.payloads) != 0 {
		t.Error("no payload should be written on failure")
	}
}

func TestTagSelectedIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	rec := models.ImageRecord{ID: bson.NewObjectID(), LocalName: "a.jpg"}
	store := newFakeTagStore(rec)
	r := tagging.NewRunner(store, tagging.NewClient(srv.URL, ""), "http://host")

	if _, err := r.TagSelected(context.Background(), 0); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := store.payloads[rec.ID.Hex()]

	if _, err := r.TagSelected(context.Background(), 0); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(store.payloads[rec.ID.Hex()], first) {
		t.Error("repeated tagging changed the stored payload")
	}
}
