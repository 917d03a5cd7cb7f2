// This file implements helpers for reading request bodies and query
// parameters.

package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"casheye/internal/core"
	"casheye/internal/ocr"
)

const (
	maxJSONBody   = 1 << 20
	maxImportBody = 8 << 20
	maxScanBody   = 32 << 20
	maxScanImages = 10
)

// decodeJSON reads a single JSON value into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}

// readImportText returns the text to import. JSON bodies carry it in a
// "text" field; any other content type is taken verbatim.
func readImportText(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)
	if mediaType(r) == "application/json" {
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("invalid request body: %w", err)
		}
		return body.Text, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(raw), nil
}

type scanImage struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// readScanImages accepts multipart uploads (any number of "image" parts) or
// a JSON body {"images":[{"mimeType","data"}]} with base64 data.
func readScanImages(w http.ResponseWriter, r *http.Request) ([]ocr.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxScanBody)

	var images []ocr.Image
	switch mediaType(r) {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxScanBody); err != nil {
			return nil, fmt.Errorf("invalid multipart body: %w", err)
		}
		for _, fh := range r.MultipartForm.File["image"] {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
			}
			mt := fh.Header.Get("Content-Type")
			if mt == "" || mt == "application/octet-stream" {
				mt = http.DetectContentType(data)
			}
			images = append(images, ocr.Image{MIMEType: mt, Data: data})
		}
	default:
		var body struct {
			Images []scanImage `json:"images"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}
		for i, img := range body.Images {
			data, err := base64.StdEncoding.DecodeString(img.Data)
			if err != nil {
				return nil, fmt.Errorf("image %d: invalid base64: %w", i, err)
			}
			images = append(images, ocr.Image{MIMEType: img.MIMEType, Data: data})
		}
	}

	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	if len(images) > maxScanImages {
		return nil, fmt.Errorf("too many images: %d (max %d)", len(images), maxScanImages)
	}
	for i, img := range images {
		if !strings.HasPrefix(img.MIMEType, "image/") {
			return nil, fmt.Errorf("image %d: unsupported type %q", i, img.MIMEType)
		}
	}
	return images, nil
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// lineFilter holds the optional ?period=YYYY-MM or ?year=YYYY restriction.
type lineFilter struct {
	period *core.Period
	year   int
}

func parseLineFilter(r *http.Request) (lineFilter, error) {
	var f lineFilter
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("period")); v != "" {
		p, err := core.ParsePeriod(v)
		if err != nil {
			return f, err
		}
		f.period = &p
	}
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			return f, fmt.Errorf("%w: year %q", core.ErrInvalidPeriod, v)
		}
		f.year = y
	}
	return f, nil
}

// parseLineKey reads the identity of a ledger line from the query string.
func parseLineKey(r *http.Request) (core.LineKey, error) {
	q := r.URL.Query()
	d, err := core.ParseDate(q.Get("date"))
	if err != nil {
		return core.LineKey{}, err
	}
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		return core.LineKey{}, core.ErrEmptyName
	}
	gross, err := strconv.ParseInt(strings.TrimSpace(q.Get("price")), 10, 64)
	if err != nil {
		return core.LineKey{}, fmt.Errorf("%w: price %q", core.ErrInvalidAmount, q.Get("price"))
	}
	return core.LineKey{Date: d.String(), Name: name, PriceIncludeTax: gross}, nil
}

// sanitizeInput removes control characters except tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
