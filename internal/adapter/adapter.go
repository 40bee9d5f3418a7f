// Package adapter defines the storage contract every backend implements and
// the dispatch that turns GraphQL arguments into adapter calls.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"harmony-graphql/internal/document"
	"harmony-graphql/internal/events"
	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/model"
)

// ErrNotFound is returned when an operation targets a missing entity.
var ErrNotFound = NewStatusError(http.StatusNotFound, errors.New("entity not found"))

// ErrAlreadyExists is returned when a create reuses an existing _id.
var ErrAlreadyExists = NewStatusError(http.StatusConflict, errors.New("entity already exists"))

// InitArgs is passed to Initialize.
type InitArgs struct {
	Models []*model.Sanitized
	Events *events.Bus
	Logger *logging.Logger
}

// BatchArgs asks for every entity of Model whose FieldName matches one of
// Keys. A list field matches when it contains a key.
type BatchArgs struct {
	Model     *model.Sanitized
	FieldName string
	Keys      []string
}

// QueryArgs are the arguments of read, readMany and count.
type QueryArgs struct {
	Filter map[string]any `mapstructure:"filter"`
	Skip   int            `mapstructure:"skip"`
	Limit  int            `mapstructure:"limit"`
	Sort   map[string]any `mapstructure:"sort"`
}

// Adapter stores the entities of one or more models.
type Adapter interface {
	Name() string
	Initialize(ctx context.Context, args InitArgs) error
	Close(ctx context.Context) error

	ResolveBatch(ctx context.Context, args BatchArgs) ([]*document.Document, error)

	Read(ctx context.Context, m *model.Sanitized, args QueryArgs) (*document.Document, error)
	ReadMany(ctx context.Context, m *model.Sanitized, args QueryArgs) ([]*document.Document, error)
	Count(ctx context.Context, m *model.Sanitized, args QueryArgs) (int64, error)

	Create(ctx context.Context, m *model.Sanitized, record *document.Document) (*document.Document, error)
	CreateMany(ctx context.Context, m *model.Sanitized, records []*document.Document) ([]*document.Document, error)
	Update(ctx context.Context, m *model.Sanitized, record *document.Document) (*document.Document, error)
	UpdateMany(ctx context.Context, m *model.Sanitized, records []*document.Document) ([]*document.Document, error)
	Delete(ctx context.Context, m *model.Sanitized, id string) (*document.Document, error)
	DeleteMany(ctx context.Context, m *model.Sanitized, ids []string) ([]*document.Document, error)
}

// StatusError attaches an HTTP-like status to an error.
type StatusError struct {
	Code int
	Err  error
}

// NewStatusError wraps err with a status code.
func NewStatusError(code int, err error) *StatusError {
	return &StatusError{Code: code, Err: err}
}

func (e *StatusError) Error() string {
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Status returns the status code.
func (e *StatusError) Status() int {
	return e.Code
}

// Dispatch decodes args for op and calls the matching adapter method. Nil
// entities are returned as untyped nil so GraphQL renders null.
func Dispatch(ctx context.Context, a Adapter, m *model.Sanitized, op model.Operation, args map[string]any) (any, error) {
	switch op {
	case model.OpRead, model.OpReadMany, model.OpCount:
		var q QueryArgs
		if err := DecodeArgs(args, &q); err != nil {
			return nil, err
		}
		switch op {
		case model.OpRead:
			return entity(a.Read(ctx, m, q))
		case model.OpReadMany:
			return a.ReadMany(ctx, m, q)
		default:
			return a.Count(ctx, m, q)
		}

	case model.OpCreate, model.OpUpdate:
		var in struct {
			Record *document.Document `mapstructure:"record"`
		}
		if err := DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.Record == nil {
			return nil, fmt.Errorf("%s: missing record", op)
		}
		if op == model.OpCreate {
			return entity(a.Create(ctx, m, in.Record))
		}
		if in.Record.ID() == "" {
			return nil, fmt.Errorf("%s: record has no %s", op, document.IDField)
		}
		return entity(a.Update(ctx, m, in.Record))

	case model.OpCreateMany, model.OpUpdateMany:
		var in struct {
			Records []*document.Document `mapstructure:"records"`
		}
		if err := DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		if op == model.OpCreateMany {
			return a.CreateMany(ctx, m, in.Records)
		}
		for i, record := range in.Records {
			if record == nil || record.ID() == "" {
				return nil, fmt.Errorf("%s: record %d has no %s", op, i, document.IDField)
			}
		}
		return a.UpdateMany(ctx, m, in.Records)

	case model.OpDelete:
		var in struct {
			ID string `mapstructure:"_id"`
		}
		if err := DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.ID == "" {
			return nil, nil
		}
		return entity(a.Delete(ctx, m, in.ID))

	case model.OpDeleteMany:
		var in struct {
			IDs []string `mapstructure:"_ids"`
		}
		if err := DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		return a.DeleteMany(ctx, m, in.IDs)
	}
	return nil, fmt.Errorf("unknown operation %q", op)
}

func entity(doc *document.Document, err error) (any, error) {
	if err != nil || doc == nil {
		return nil, err
	}
	return doc, nil
}
