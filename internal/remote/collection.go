package remote

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/weekfold/weekfold/internal/model"
	"github.com/weekfold/weekfold/internal/sync"
)

// Collection is the typed REST surface of one entity collection.
type Collection[T model.Record] struct {
	c    *Client
	path string
}

// recordsEnvelope wraps every batch payload on the wire.
type recordsEnvelope[T any] struct {
	Records []T `json:"records"`
}

// Push bulk-upserts records and returns the server-assigned
// representations. The upsert key is the record id, so retrying after an
// ambiguous network failure cannot create duplicates.
func (col *Collection[T]) Push(ctx context.Context, recs []T) ([]T, error) {
	var resp recordsEnvelope[T]
	err := col.c.do(ctx, http.MethodPost, "/v1/"+col.path+"/batch", nil,
		recordsEnvelope[T]{Records: recs}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// PullSince returns records updated strictly after since. A zero since
// pulls everything. The view context narrows the result set server-side.
func (col *Collection[T]) PullSince(ctx context.Context, userID string, since time.Time, view sync.ViewContext) ([]T, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	if !since.IsZero() {
		query.Set("updated_after", since.UTC().Format(time.RFC3339Nano))
	}
	if view.Bucket != nil {
		query.Set("bucket", string(*view.Bucket))
	}
	if view.DueBy != nil {
		query.Set("due_by", view.DueBy.UTC().Format(time.RFC3339Nano))
	}

	var resp recordsEnvelope[T]
	if err := col.c.do(ctx, http.MethodGet, "/v1/"+col.path, query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Fetch retrieves one record by id. A 404 reports (zero, false, nil): the
// row is gone upstream, which is an answer, not an error.
func (col *Collection[T]) Fetch(ctx context.Context, id string) (T, bool, error) {
	var rec T
	err := col.c.do(ctx, http.MethodGet, "/v1/"+col.path+"/"+url.PathEscape(id), nil, nil, &rec)
	if errors.Is(err, sync.ErrNotFound) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return rec, true, nil
}

// SoftDelete tombstones one record server-side.
func (col *Collection[T]) SoftDelete(ctx context.Context, id string) error {
	return col.c.do(ctx, http.MethodDelete, "/v1/"+col.path+"/"+url.PathEscape(id), nil, nil, nil)
}
