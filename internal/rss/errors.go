package rss

import "fmt"

// FetchError indicates the feed or the conversion endpoint could not be
// reached, or answered with a non-success HTTP status.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError indicates the conversion service reported a failure status for
// the feed.
type ParseError struct {
	URL     string
	Message string
}

func (e *ParseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("parse %s: conversion service reported failure", e.URL)
	}
	return fmt.Sprintf("parse %s: %s", e.URL, e.Message)
}

// ValidationError indicates the fetched feed was empty or malformed.
type ValidationError struct {
	URL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid feed %s: %s", e.URL, e.Reason)
}
