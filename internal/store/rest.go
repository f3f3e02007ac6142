package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestConfig points the REST backend at one hosted database.
type RestConfig struct {
	Endpoint   string // e.g. https://cloud.example.io/v1
	Project    string
	APIKey     string
	DatabaseID string
}

// RestStore implements DocumentStore against an Appwrite-compatible REST API.
// The hosted service enforces the declared attribute schema on writes, which
// is where the unknown-attribute rejections the resolver reacts to come from.
type RestStore struct {
	cfg    RestConfig
	client *resty.Client
	log    *slog.Logger
}

// restDocument is the wire shape of a document; all non-$ keys are schema
// attributes and land in Fields untouched.
type restDocument map[string]any

type restDocumentList struct {
	Total     int64          `json:"total"`
	Documents []restDocument `json:"documents"`
}

type restAPIError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
}

type restAttribute struct {
	Key      string `json:"key"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type restCollection struct {
	Attributes []restAttribute `json:"attributes"`
}

// NewRestStore builds a RestStore with sane timeouts.
func NewRestStore(cfg RestConfig) *RestStore {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetHeader("X-Appwrite-Project", cfg.Project).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)
	if cfg.APIKey != "" {
		client.SetHeader("X-Appwrite-Key", cfg.APIKey)
	}
	return &RestStore{cfg: cfg, client: client, log: slog.Default().With("store", "rest")}
}

func (s *RestStore) documentsPath(collection string) string {
	return fmt.Sprintf("/databases/%s/collections/%s/documents", s.cfg.DatabaseID, collection)
}

// Query lists documents with equality/order/limit query strings.
func (s *RestStore) Query(ctx context.Context, collection string, opts QueryOptions) (*QueryResult, error) {
	queries := make([]string, 0, len(opts.Filters)+3)
	for _, f := range opts.Filters {
		queries = append(queries, fmt.Sprintf(`equal("%s", ["%v"])`, f.Field, f.Value))
	}
	if opts.OrderBy != "" {
		if opts.Descending {
			queries = append(queries, fmt.Sprintf(`orderDesc("%s")`, opts.OrderBy))
		} else {
			queries = append(queries, fmt.Sprintf(`orderAsc("%s")`, opts.OrderBy))
		}
	}
	if opts.Limit > 0 {
		queries = append(queries, fmt.Sprintf(`limit(%d)`, opts.Limit))
	}
	if opts.Offset > 0 {
		queries = append(queries, fmt.Sprintf(`offset(%d)`, opts.Offset))
	}

	var (
		list   restDocumentList
		apiErr restAPIError
	)
	params := url.Values{}
	for _, q := range queries {
		params.Add("queries[]", q)
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		SetResult(&list).
		SetError(&apiErr).
		Get(s.documentsPath(collection))
	if err != nil {
		return nil, NewError(KindNetworkUnavailable, "query", err)
	}
	if resp.IsError() {
		return nil, classifyRest("query", resp.StatusCode(), apiErr)
	}

	out := &QueryResult{Total: list.Total, Documents: make([]Document, 0, len(list.Documents))}
	for _, rd := range list.Documents {
		out.Documents = append(out.Documents, restToDocument(rd))
	}
	return out, nil
}

// Create writes a document under a caller-supplied id; 409 means the id is
// already taken and surfaces as KindConflict.
func (s *RestStore) Create(ctx context.Context, collection, id string, fields Fields, perms []Permission) (*Document, error) {
	permStrings := make([]string, 0, len(perms))
	for _, p := range perms {
		permStrings = append(permStrings, string(p))
	}

	var (
		created restDocument
		apiErr  restAPIError
	)
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"documentId":  id,
			"data":        fields,
			"permissions": permStrings,
		}).
		SetResult(&created).
		SetError(&apiErr).
		Post(s.documentsPath(collection))
	if err != nil {
		return nil, NewError(KindNetworkUnavailable, "create", err)
	}
	if resp.IsError() {
		return nil, classifyRest("create", resp.StatusCode(), apiErr)
	}
	doc := restToDocument(created)
	return &doc, nil
}

// Update patches a document's fields.
func (s *RestStore) Update(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	var (
		updated restDocument
		apiErr  restAPIError
	)
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"data": fields}).
		SetResult(&updated).
		SetError(&apiErr).
		Patch(s.documentsPath(collection) + "/" + id)
	if err != nil {
		return nil, NewError(KindNetworkUnavailable, "update", err)
	}
	if resp.IsError() {
		return nil, classifyRest("update", resp.StatusCode(), apiErr)
	}
	doc := restToDocument(updated)
	return &doc, nil
}

// Delete removes a document by id.
func (s *RestStore) Delete(ctx context.Context, collection, id string) error {
	var apiErr restAPIError
	resp, err := s.client.R().
		SetContext(ctx).
		SetError(&apiErr).
		Delete(s.documentsPath(collection) + "/" + id)
	if err != nil {
		return NewError(KindNetworkUnavailable, "delete", err)
	}
	if resp.IsError() {
		return classifyRest("delete", resp.StatusCode(), apiErr)
	}
	return nil
}

// GetSchema fetches the collection's declared attributes.
func (s *RestStore) GetSchema(ctx context.Context, collection string) ([]SchemaField, error) {
	var (
		col    restCollection
		apiErr restAPIError
	)
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&col).
		SetError(&apiErr).
		Get(fmt.Sprintf("/databases/%s/collections/%s", s.cfg.DatabaseID, collection))
	if err != nil {
		return nil, NewError(KindNetworkUnavailable, "get_schema", err)
	}
	if resp.IsError() {
		return nil, classifyRest("get_schema", resp.StatusCode(), apiErr)
	}

	fields := make([]SchemaField, 0, len(col.Attributes))
	for _, a := range col.Attributes {
		fields = append(fields, SchemaField{Key: a.Key, Type: a.Type, Required: a.Required})
	}
	return fields, nil
}

// Subscribe opens the realtime websocket channel for the collection. See
// realtime.go for the connection loop.
func (s *RestStore) Subscribe(ctx context.Context, collection string, fn func(Event)) (Unsubscribe, error) {
	return subscribeRealtime(ctx, s.cfg, collection, fn, s.log)
}

func restToDocument(rd restDocument) Document {
	doc := Document{Fields: Fields{}}
	for k, v := range rd {
		switch k {
		case "$id":
			doc.ID = fmt.Sprint(v)
		case "$createdAt":
			if ts, ok := v.(string); ok {
				if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
					doc.CreatedAt = parsed
				}
			}
		case "$collectionId", "$databaseId", "$updatedAt", "$permissions":
			// metadata, not schema attributes
		default:
			doc.Fields[k] = v
		}
	}
	return doc
}

func classifyRest(op string, status int, apiErr restAPIError) error {
	err := fmt.Errorf("%s (HTTP %d, %s)", apiErr.Message, status, apiErr.Type)
	msg := strings.ToLower(apiErr.Message)
	switch {
	case status == 409 || strings.Contains(msg, "already exists"):
		return NewError(KindConflict, op, err)
	case status == 404:
		return NewError(KindNotFound, op, err)
	case status == 401 || status == 403:
		return NewError(KindUnauthenticated, op, err)
	case status == 400 && (apiErr.Type == "attribute_not_found" || strings.Contains(msg, "unknown attribute")):
		return NewError(KindUnknownField, op, err)
	case status >= 500:
		return NewError(KindNetworkUnavailable, op, err)
	default:
		return NewError(KindPersistenceFailed, op, err)
	}
}
