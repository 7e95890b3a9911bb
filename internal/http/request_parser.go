// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// owner scope, range parameters, path identifiers and JSON bodies.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"dompet/internal/core"
)

// HeaderOwnerID carries the owner whose records a request reads and writes.
const HeaderOwnerID = "X-Owner-ID"

const (
	maxBodyBytes    = 64 << 10
	maxOwnerIDBytes = 128
)

var (
	errEmptyBody   = errors.New("request body is empty")
	errInvalidID   = errors.New("invalid id")
	errInvalidJSON = errors.New("invalid JSON body")
)

// ParseOwner returns the scope named by the X-Owner-ID header. A missing
// header is the unscoped view.
func ParseOwner(r *http.Request) (core.OwnerScope, error) {
	owner := sanitizeInput(r.Header.Get(HeaderOwnerID))
	if len(owner) > maxOwnerIDBytes {
		return core.OwnerScope{}, fmt.Errorf("owner id longer than %d bytes", maxOwnerIDBytes)
	}
	return core.OwnerScope{OwnerID: owner}, nil
}

// RangeParams holds the raw start/end query values. Resolution and fallback
// happen in the report package.
type RangeParams struct {
	Start string
	End   string
}

// ParseRangeParams extracts start and end from the query string.
func ParseRangeParams(r *http.Request) RangeParams {
	q := r.URL.Query()
	return RangeParams{
		Start: strings.TrimSpace(q.Get("start")),
		End:   strings.TrimSpace(q.Get("end")),
	}
}

// ParsePathID reads a positive integer path wildcard.
func ParsePathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// CategoryRequest is the body of POST /api/categories.
type CategoryRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Category converts the request for owner.
func (c CategoryRequest) Category(owner core.OwnerScope) (core.Category, error) {
	typ, err := core.ParseCategoryType(c.Type)
	if err != nil {
		return core.Category{}, err
	}
	return core.Category{
		OwnerID: owner.OwnerID,
		Name:    sanitizeInput(c.Name),
		Type:    typ,
	}, nil
}

// AmountField accepts a JSON string or number. A string may use a comma
// decimal separator.
type AmountField string

func (a *AmountField) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = AmountField(s)
		return nil
	}
	*a = AmountField(b)
	return nil
}

// TransactionRequest is the body of POST /api/transactions.
type TransactionRequest struct {
	CategoryID  int64       `json:"category_id"`
	Amount      AmountField `json:"amount"`
	Description string      `json:"description"`
	Date        string      `json:"date"`
}

// Transaction converts the request for owner. An empty date means today.
func (t TransactionRequest) Transaction(owner core.OwnerScope, today core.Date) (core.Transaction, error) {
	amount, err := core.ParseAmount(string(t.Amount))
	if err != nil {
		return core.Transaction{}, err
	}
	date := today
	if s := strings.TrimSpace(t.Date); s != "" {
		if date, err = core.ParseDate(s); err != nil {
			return core.Transaction{}, core.ErrInvalidDate
		}
	}
	return core.Transaction{
		OwnerID:     owner.OwnerID,
		CategoryID:  t.CategoryID,
		Amount:      amount,
		Description: sanitizeInput(t.Description),
		Date:        date,
	}, nil
}

// DecodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return err
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errEmptyBody
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errInvalidJSON
	}
	return nil
}
