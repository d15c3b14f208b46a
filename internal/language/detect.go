package language

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	detectWindow     = 500
	defaultCacheSize = 128
	devanagariStart  = 'ऀ'
	devanagariEnd    = 'ॿ'
)

// Detector classifies transcript text by script and memoizes results.
type Detector struct {
	cache *lru.Cache[string, string]
}

// NewDetector builds a detector with an LRU of size entries (128 when size <= 0).
func NewDetector(size int) (*Detector, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Detector{cache: cache}, nil
}

// Detect returns "hi" when any of the first 500 characters is Devanagari,
// otherwise "en".
func (d *Detector) Detect(text string) string {
	key := window(text)
	if lang, ok := d.cache.Get(key); ok {
		return lang
	}
	lang := detectScript(key)
	d.cache.Add(key, lang)
	return lang
}

// Cached reports how many distinct inputs are memoized.
func (d *Detector) Cached() int {
	return d.cache.Len()
}

// window returns the prefix the classification depends on, which also keeps
// cache keys bounded.
func window(text string) string {
	count := 0
	for i := range text {
		if count == detectWindow {
			return text[:i]
		}
		count++
	}
	return text
}

func detectScript(text string) string {
	for _, r := range text {
		if r >= devanagariStart && r <= devanagariEnd {
			return "hi"
		}
	}
	return Default
}
