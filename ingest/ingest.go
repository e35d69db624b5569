// Package ingest turns (account, since-date) into new image records. The
// pipeline is single-writer per account and blocking: each image is
// fetched, hashed and persisted in sequence. Running several accounts at
// once is safe; concurrent runs coordinate only through the store's
// unique-key constraints.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"trendgallery/models"
	"trendgallery/phash"
	"trendgallery/scraper"
	"trendgallery/store"
)

const fetchTimeout = 30 * time.Second

// RecordStore is the slice of the image store the pipeline needs.
type RecordStore interface {
	ExistsByURL(ctx context.Context, url string) (bool, error)
	ExistsByPostSlot(ctx context.Context, postID, slot string) (bool, error)
	FindNearPhash(ctx context.Context, hash string, threshold int) (*models.ImageRecord, error)
	Insert(ctx context.Context, rec *models.ImageRecord) error
}

// PostSource returns an account's posts newer than since, capped at limit.
type PostSource interface {
	FetchPosts(ctx context.Context, handle string, since time.Time, limit int) ([]scraper.Post, error)
}

// Summary is the outcome of one account run. Item-level failures are
// counted here and never abort the run.
type Summary struct {
	Downloaded             int `json:"downloaded"`
	SkippedURLDuplicate    int `json:"skipped_url_duplicate"`
	SkippedVisualDuplicate int `json:"skipped_visual_duplicate"`
	Failed                 int `json:"failed"`
	DecodeFailed           int `json:"decode_failed"`
}

// Pipeline ingests posts for one account at a time.
type Pipeline struct {
	source  PostSource
	records RecordStore
	files   store.FileStore

	httpClient *http.Client
	threshold  int

	// OnProgress, when set, is called after each candidate image.
	OnProgress func(done, total int)
}

func NewPipeline(source PostSource, records RecordStore, files store.FileStore) *Pipeline {
	return &Pipeline{
		source:     source,
		records:    records,
		files:      files,
		httpClient: &http.Client{Timeout: fetchTimeout},
		threshold:  phash.DefaultThreshold,
	}
}

// SetThreshold overrides the visual-dedup distance. Valid values are 0-10.
func (p *Pipeline) SetThreshold(threshold int) {
	if threshold >= 0 && threshold <= 10 {
		p.threshold = threshold
	}
}

// candidate is one image URL enumerated from a post, in stable order.
// ordinal counts within the post, so a post's local names never depend on
// what other posts the run happened to cover.
type candidate struct {
	url     string
	slot    string
	ordinal int
	post    *scraper.Post
}

// enumerate lists candidate image URLs post by post: primary image first,
// then additional images, then carousel children. URLs repeated within one
// post are dropped on the fly.
func enumerate(posts []scraper.Post) []candidate {
	var out []candidate
	for i := range posts {
		post := &posts[i]
		seen := make(map[string]bool)
		ordinal := 0

		add := func(url, slot string) {
			if url == "" || seen[url] {
				return
			}
			seen[url] = true
			ordinal++
			out = append(out, candidate{url: url, slot: slot, ordinal: ordinal, post: post})
		}

		add(post.DisplayURL, "main")
		for j, url := range post.Images {
			add(url, fmt.Sprintf("gallery_%d", j+1))
		}
		for j, child := range post.ChildPosts {
			add(child.DisplayURL, fmt.Sprintf("child_%d", j+1))
			for k, url := range child.Images {
				add(url, fmt.Sprintf("child_%d_%d", j+1, k+1))
			}
		}
	}
	return out
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// Run ingests every new image of account posted since the given date.
// limit caps the posts requested from the scraper; zero derives it from
// the covered period.
func (p *Pipeline) Run(ctx context.Context, account string, since time.Time, limit int) (Summary, error) {
	var sum Summary

	if limit <= 0 {
		limit = scraper.PostLimit(since, time.Now())
	}

	posts, err := p.source.FetchPosts(ctx, account, since, limit)
	if err != nil {
		return sum, fmt.Errorf("fetch posts for %s: %w", account, err)
	}

	candidates := enumerate(posts)
	log.Printf("ingest %s: %d posts, %d candidate images", account, len(posts), len(candidates))

	for i, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		p.ingestOne(ctx, account, cand, &sum)
		if p.OnProgress != nil {
			p.OnProgress(i+1, len(candidates))
		}
	}

	log.Printf("ingest %s: downloaded=%d url_dup=%d visual_dup=%d failed=%d decode_failed=%d",
		account, sum.Downloaded, sum.SkippedURLDuplicate, sum.SkippedVisualDuplicate, sum.Failed, sum.DecodeFailed)
	return sum, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, account string, cand candidate, sum *Summary) {
	// URL / post-slot dedup. The slot check is what survives rotating
	// signed CDN URLs between scrapes.
	exists, err := p.records.ExistsByURL(ctx, cand.url)
	if err != nil {
		sum.Failed++
		log.Printf("ingest %s: url check: %v", account, err)
		return
	}
	if !exists {
		exists, err = p.records.ExistsByPostSlot(ctx, cand.post.ShortCode, cand.slot)
		if err != nil {
			sum.Failed++
			log.Printf("ingest %s: post-slot check: %v", account, err)
			return
		}
	}
	if exists {
		sum.SkippedURLDuplicate++
		return
	}

	localName := fmt.Sprintf("%s_%s_%04d.jpg", cand.post.ShortCode, cand.slot, cand.ordinal)

	// Bytes already on disk mean an earlier run got this far; skip the
	// download and leave the record to that run.
	onDisk, err := p.files.Has(ctx, localName)
	if err == nil && onDisk {
		sum.SkippedURLDuplicate++
		return
	}

	data, status, err := p.fetch(ctx, cand.url)
	if err != nil || status != http.StatusOK {
		sum.Failed++
		log.Printf("ingest %s: fetch %s: status=%d err=%v", account, cand.url, status, err)
		return
	}

	hash, err := phash.Fingerprint(data)
	if err != nil {
		if errors.Is(err, phash.ErrDecode) {
			sum.DecodeFailed++
		} else {
			sum.Failed++
		}
		log.Printf("ingest %s: fingerprint %s: %v", account, localName, err)
		return
	}

	// Visual dedup: a near-identical image is already stored under some
	// other URL. Silent skip, not an error.
	near, err := p.records.FindNearPhash(ctx, hash, p.threshold)
	if err != nil {
		sum.Failed++
		log.Printf("ingest %s: phash scan: %v", account, err)
		return
	}
	if near != nil {
		sum.SkippedVisualDuplicate++
		return
	}

	// File first, then document; a failed insert deletes the orphan so a
	// cancelled run leaves no half-written image.
	if err := p.files.Put(ctx, localName, data); err != nil {
		sum.Failed++
		log.Printf("ingest %s: store bytes %s: %v", account, localName, err)
		return
	}

	now := time.Now()
	rec := &models.ImageRecord{
		SourceAccount:  account,
		SourcePostID:   cand.post.ShortCode,
		Slot:           cand.slot,
		SourceImageURL: cand.url,
		LocalName:      localName,
		PHash:          hash,
		FileSize:       int64(len(data)),
		FetchedAt:      now,
		IngestedAt:     now,
		Engagement: models.Engagement{
			Likes:    clamp(cand.post.LikesCount),
			Comments: clamp(cand.post.CommentsCount),
		},
		Caption:       cand.post.Caption,
		PostTimestamp: cand.post.Timestamp,
	}

	if err := p.records.Insert(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicateLocalName) ||
			errors.Is(err, store.ErrDuplicateURL) ||
			errors.Is(err, store.ErrConflict) {
			// Lost the race to a concurrent run; the other writer owns it.
			p.files.Delete(ctx, localName)
			sum.SkippedURLDuplicate++
			return
		}
		p.files.Delete(ctx, localName)
		sum.Failed++
		log.Printf("ingest %s: insert %s: %v", account, localName, err)
		return
	}

	sum.Downloaded++
}

func (p *Pipeline) fetch(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}
