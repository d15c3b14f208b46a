// Package language owns language codes, display names, report fonts and
// script-based detection for transcripts.
//
// The supported table covers English plus the Indian languages the report
// renderer has Noto Sans faces for. Detection only distinguishes Devanagari
// (reported as Hindi) from everything else (English) and is memoized in an
// LRU cache.
package language
