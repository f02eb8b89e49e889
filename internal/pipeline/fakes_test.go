package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgtype"

	"thirdcoast.systems/mediaqueue/internal/db"
	"thirdcoast.systems/mediaqueue/internal/summarize"
	"thirdcoast.systems/mediaqueue/pkg/adscraper"
	"thirdcoast.systems/mediaqueue/pkg/videoinfo"
)

type fakeScraper struct {
	result *adscraper.Result
	err    error
	panics bool
}

func (f *fakeScraper) Scrape(context.Context, string) (*adscraper.Result, error) {
	if f.panics {
		panic("browser crashed")
	}
	return f.result, f.err
}

type fakeDownloader struct {
	body  []byte
	err   error
	dests []string
}

func (f *fakeDownloader) DownloadToFile(_ context.Context, _ string, dest string) (int64, error) {
	f.dests = append(f.dests, dest)
	if f.err != nil {
		return 0, f.err
	}
	if err := os.WriteFile(dest, f.body, 0o600); err != nil {
		return 0, err
	}
	return int64(len(f.body)), nil
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	fetched []string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memObjects) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, key)
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type fakeAudio struct {
	err    error
	inputs []string
}

func (f *fakeAudio) ExtractAudio(_ context.Context, input, output string) error {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(output, []byte("mp3"), 0o600)
}

type fakeAI struct {
	transcript string
	sttErr     error
	ad         summarize.AdSummary
	doc        summarize.DocumentSummary
	llmErr     error
	docText    string
}

func (f *fakeAI) Transcribe(context.Context, string) (string, error) {
	return f.transcript, f.sttErr
}

func (f *fakeAI) SummarizeAd(context.Context, string, string) (summarize.AdSummary, error) {
	return f.ad, f.llmErr
}

func (f *fakeAI) SummarizeDocument(_ context.Context, text, _ string) (summarize.DocumentSummary, error) {
	f.docText = text
	return f.doc, f.llmErr
}

type swipeRecord struct {
	status     db.SwipeStatus
	videoKey   string
	transcript *string
	title      *string
	summary    *string
	metadata   db.JSONMap
	errMsg     *string
}

type fakeSwipes struct {
	mu     sync.Mutex
	swipes map[string]*swipeRecord
}

func newFakeSwipes(ids ...string) *fakeSwipes {
	f := &fakeSwipes{swipes: map[string]*swipeRecord{}}
	for _, id := range ids {
		f.swipes[id] = &swipeRecord{status: db.SwipeStatusProcessing, metadata: db.JSONMap{"submitted_by": "ui"}}
	}
	return f
}

func (f *fakeSwipes) get(id string) (*swipeRecord, error) {
	s, ok := f.swipes[id]
	if !ok {
		return nil, errors.New("swipe not found")
	}
	return s, nil
}

func (f *fakeSwipes) SetSwipeVideoKey(_ context.Context, id, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.get(id)
	if err != nil {
		return err
	}
	s.videoKey = key
	return nil
}

func (f *fakeSwipes) CompleteSwipe(_ context.Context, id string, res db.SwipeResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.get(id)
	if err != nil {
		return err
	}
	s.status = db.SwipeStatusReady
	s.transcript = &res.Transcript
	s.title = res.Title
	s.summary = &res.Summary
	for k, v := range res.Metadata {
		s.metadata[k] = v
	}
	s.errMsg = nil
	return nil
}

func (f *fakeSwipes) MarkSwipeRetrying(_ context.Context, id string, md db.JSONMap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.get(id)
	if err != nil {
		return err
	}
	s.status = db.SwipeStatusProcessing
	for k, v := range md {
		s.metadata[k] = v
	}
	return nil
}

func (f *fakeSwipes) MarkSwipeFailed(_ context.Context, id, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.get(id)
	if err != nil {
		return err
	}
	s.status = db.SwipeStatusFailed
	s.errMsg = &msg
	return nil
}

type itemRecord struct {
	status        db.ResearchItemStatus
	content       string
	title         *string
	summary       string
	metadata      db.JSONMap
	errMsg        *string
	fileProcessed bool
}

type fakeResearch struct {
	items map[string]*itemRecord
	files map[string]bool
}

func newFakeResearch(itemID, fileID string) *fakeResearch {
	return &fakeResearch{
		items: map[string]*itemRecord{itemID: {status: db.ResearchItemStatusProcessing, metadata: db.JSONMap{}}},
		files: map[string]bool{fileID: false},
	}
}

func (f *fakeResearch) CompleteResearch(_ context.Context, itemID, fileID string, res db.ResearchResult) error {
	it, ok := f.items[itemID]
	if !ok {
		return errors.New("item not found")
	}
	if _, ok := f.files[fileID]; !ok {
		return errors.New("file not found")
	}
	it.status = db.ResearchItemStatusInbox
	it.content = res.Content
	it.title = res.Title
	it.summary = res.Summary
	for k, v := range res.Metadata {
		it.metadata[k] = v
	}
	it.errMsg = nil
	f.files[fileID] = true
	return nil
}

func (f *fakeResearch) MarkResearchItemRetrying(_ context.Context, itemID string, md db.JSONMap) error {
	it := f.items[itemID]
	it.status = db.ResearchItemStatusProcessing
	for k, v := range md {
		it.metadata[k] = v
	}
	return nil
}

func (f *fakeResearch) MarkResearchItemFailed(_ context.Context, itemID, msg string) error {
	it := f.items[itemID]
	it.status = db.ResearchItemStatusFailed
	it.errMsg = &msg
	return nil
}

func newJob(typ db.MediaJobType, attempts int32, input any) *db.MediaJob {
	raw, _ := json.Marshal(input)
	return &db.MediaJob{
		ID:       pgtype.UUID{Bytes: [16]byte{1, 2, 3}, Valid: true},
		Type:     typ,
		Status:   db.MediaJobStatusRunning,
		Input:    raw,
		Attempts: attempts,
	}
}

type fakeProber struct {
	info *videoinfo.ProbeInfo
	err  error
}

func (f *fakeProber) Probe(context.Context, string) (*videoinfo.ProbeInfo, error) {
	return f.info, f.err
}
