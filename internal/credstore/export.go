package credstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// extension cookie exports (EditThisCookie, Cookie-Editor) are a bare array
type extensionCookie struct {
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Domain         string  `json:"domain"`
	Path           string  `json:"path"`
	ExpirationDate float64 `json:"expirationDate"`
	Session        bool    `json:"session"`
	HttpOnly       bool    `json:"httpOnly"`
	Secure         bool    `json:"secure"`
}

// playwright storage_state files, expires is -1 for session cookies
type playwrightState struct {
	Cookies []struct {
		Name     string  `json:"name"`
		Value    string  `json:"value"`
		Domain   string  `json:"domain"`
		Path     string  `json:"path"`
		Expires  float64 `json:"expires"`
		HttpOnly bool    `json:"httpOnly"`
		Secure   bool    `json:"secure"`
	} `json:"cookies"`
}

func unixFloat(seconds float64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// ParseExport converts a cookie export into an artifact captured at now. Browser extension
// exports, playwright storage state and this package's own format are accepted, only
// linkedin.com cookies are kept.
func ParseExport(data []byte, now time.Time) (Artifact, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Artifact{}, ErrUnknownFormat
	}

	var cookies []Cookie
	switch data[0] {
	case '[':
		var exported []extensionCookie
		err := json.Unmarshal(data, &exported)
		if err != nil {
			return Artifact{}, fmt.Errorf("parse extension export: %w", err)
		}
		for _, c := range exported {
			expires := unixFloat(c.ExpirationDate)
			if c.Session {
				expires = time.Time{}
			}
			cookies = append(cookies, Cookie{
				Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
				Expires: expires, HTTPOnly: c.HttpOnly, Secure: c.Secure,
			})
		}
	case '{':
		var keys map[string]json.RawMessage
		err := json.Unmarshal(data, &keys)
		if err != nil {
			return Artifact{}, fmt.Errorf("parse export: %w", err)
		}
		if _, own := keys["captured_at"]; own {
			var artifact Artifact
			err = json.Unmarshal(data, &artifact)
			if err != nil {
				return Artifact{}, fmt.Errorf("parse artifact: %w", err)
			}
			cookies = artifact.Cookies
			break
		}
		if _, ok := keys["cookies"]; !ok {
			return Artifact{}, ErrUnknownFormat
		}
		var state playwrightState
		err = json.Unmarshal(data, &state)
		if err != nil {
			return Artifact{}, fmt.Errorf("parse storage state: %w", err)
		}
		for _, c := range state.Cookies {
			cookies = append(cookies, Cookie{
				Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
				Expires: unixFloat(c.Expires), HTTPOnly: c.HttpOnly, Secure: c.Secure,
			})
		}
	default:
		return Artifact{}, ErrUnknownFormat
	}

	kept := []Cookie{}
	for _, c := range cookies {
		if IsTargetDomain(c.Domain) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return Artifact{}, ErrNoTargetCookie
	}
	return Artifact{
		Cookies:    kept,
		CapturedAt: now,
		Source:     SourceImport,
	}, nil
}
