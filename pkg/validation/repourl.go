// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation helpers shared by the API
// and CLI surfaces.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrInvalidRepoURL indicates a URL that is not a supported public
	// repository reference.
	ErrInvalidRepoURL = errors.New("invalid repository URL")

	// ErrUnsupportedHost indicates a hosting provider outside the allowlist.
	ErrUnsupportedHost = errors.New("unsupported hosting provider")
)

// allowedHosts is the set of public code-hosting providers slopscope will
// clone from. Keeping an allowlist prevents the worker from being pointed
// at arbitrary internal endpoints.
var allowedHosts = map[string]bool{
	"github.com":    true,
	"gitlab.com":    true,
	"bitbucket.org": true,
	"codeberg.org":  true,
}

// pathSegment matches a single owner or repository name segment.
var pathSegment = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// RepoRef is a normalized reference to a hosted repository.
type RepoRef struct {
	// URL is the canonical https clone URL without trailing slash or .git.
	URL string

	// Host is the hosting provider, e.g. "github.com".
	Host string

	// Owner is the user or organization segment.
	Owner string

	// Name is the repository name without the .git suffix.
	Name string
}

// String returns the canonical URL.
func (r RepoRef) String() string { return r.URL }

// Slug returns "owner/name".
func (r RepoRef) Slug() string { return r.Owner + "/" + r.Name }

// ParseRepoURL validates and normalizes a user-submitted repository URL.
//
// Accepted forms:
//
//	https://github.com/owner/repo
//	http://github.com/owner/repo       (upgraded to https)
//	github.com/owner/repo              (scheme added)
//	https://github.com/owner/repo.git  (.git stripped)
//
// Extra path segments, query strings, fragments, embedded credentials, and
// hosts outside the allowlist are rejected.
func ParseRepoURL(raw string) (RepoRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RepoRef{}, fmt.Errorf("%w: empty", ErrInvalidRepoURL)
	}

	// Tolerate scheme-less submissions from the form field.
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return RepoRef{}, fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return RepoRef{}, fmt.Errorf("%w: scheme %q", ErrInvalidRepoURL, u.Scheme)
	}
	if u.User != nil {
		return RepoRef{}, fmt.Errorf("%w: credentials in URL", ErrInvalidRepoURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return RepoRef{}, fmt.Errorf("%w: query or fragment present", ErrInvalidRepoURL)
	}

	host := strings.ToLower(u.Hostname())
	if !allowedHosts[host] {
		return RepoRef{}, fmt.Errorf("%w: %q", ErrUnsupportedHost, host)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) != 2 {
		return RepoRef{}, fmt.Errorf("%w: expected owner/repo path, got %q", ErrInvalidRepoURL, u.Path)
	}

	owner := segments[0]
	name := strings.TrimSuffix(segments[1], ".git")
	if !pathSegment.MatchString(owner) || !pathSegment.MatchString(name) {
		return RepoRef{}, fmt.Errorf("%w: bad owner or repo segment", ErrInvalidRepoURL)
	}

	return RepoRef{
		URL:   fmt.Sprintf("https://%s/%s/%s", host, owner, name),
		Host:  host,
		Owner: owner,
		Name:  name,
	}, nil
}

// AllowedHosts returns the hosting provider allowlist, sorted order not
// guaranteed. Exposed for the API's error payloads.
func AllowedHosts() []string {
	hosts := make([]string, 0, len(allowedHosts))
	for h := range allowedHosts {
		hosts = append(hosts, h)
	}
	return hosts
}
