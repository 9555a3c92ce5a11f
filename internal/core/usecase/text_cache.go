package usecase

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/case-analyst/internal/core/domain"
	"github.com/kirillkom/case-analyst/internal/core/ports"
)

type textEntry struct {
	text domain.ExtractedText
	err  error
}

// textCache extracts each document at most once per run. Concurrent callers
// for the same document share one extraction; failures are remembered too,
// except cancellations.
type textCache struct {
	extractor ports.TextExtractor
	observer  ports.RunObserver

	group singleflight.Group
	mu    sync.Mutex
	done  map[string]textEntry
}

func newTextCache(extractor ports.TextExtractor, observer ports.RunObserver) *textCache {
	return &textCache{
		extractor: extractor,
		observer:  observer,
		done:      make(map[string]textEntry),
	}
}

func (c *textCache) Get(ctx context.Context, doc domain.Document) (domain.ExtractedText, error) {
	if entry, ok := c.lookup(doc.ID); ok {
		return entry.text, entry.err
	}

	v, _, _ := c.group.Do(doc.ID, func() (any, error) {
		if entry, ok := c.lookup(doc.ID); ok {
			return entry, nil
		}
		text, err := c.extractor.Extract(ctx, doc)
		if err == nil && len(text.Pages) == 0 {
			err = domain.WrapError(domain.ErrExtraction, "extract "+doc.ID, errors.New("no extractable text"))
		}
		entry := textEntry{text: text, err: err}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return entry, nil
		}
		c.observer.ObserveExtraction(doc.ID, err)
		c.mu.Lock()
		c.done[doc.ID] = entry
		c.mu.Unlock()
		return entry, nil
	})
	entry := v.(textEntry)
	return entry.text, entry.err
}

func (c *textCache) lookup(id string) (textEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.done[id]
	return entry, ok
}
