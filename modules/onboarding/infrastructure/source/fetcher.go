// Package source reads raw entities from the source-of-record HTTP API.
package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/modules/onboarding/domain/onboarderr"
	"github.com/iota-uz/onboarding/modules/onboarding/infrastructure/httpjson"
	"github.com/iota-uz/onboarding/modules/onboarding/services"
	"github.com/iota-uz/onboarding/pkg/configuration"
	"github.com/iota-uz/onboarding/pkg/workqueue"
)

const (
	apiKeyHeader = "X-API-Key"
	pageLimit    = 500
)

var collections = map[entity.Kind]string{
	entity.KindOrganization: "organizations",
	entity.KindSchool:       "schools",
	entity.KindClass:        "classes",
	entity.KindUser:         "users",
}

type page struct {
	Items      []json.RawMessage `json:"items"`
	NextCursor *string           `json:"next_cursor"`
}

type Fetcher struct {
	http *httpjson.Client
}

var _ services.Fetcher = (*Fetcher)(nil)

func New(opts configuration.SourceOptions, log *logrus.Entry) (*Fetcher, error) {
	header := http.Header{}
	if opts.APIKey != "" {
		header.Set(apiKeyHeader, opts.APIKey)
	}
	if log != nil {
		log = log.WithField("component", "source")
	}
	c, err := httpjson.New(httpjson.Options{
		BaseURL:    opts.BaseURL,
		Header:     header,
		Timeout:    opts.Timeout,
		MaxRetries: opts.MaxRetries,
		Logger:     log,
	})
	if err != nil {
		return nil, errors.Wrap(err, "source fetcher")
	}
	return &Fetcher{http: c}, nil
}

func NewWithHTTP(c *httpjson.Client) *Fetcher {
	return &Fetcher{http: c}
}

func (f *Fetcher) FetchEntity(ctx context.Context, kind entity.Kind, id string) (entity.Raw, error) {
	coll, ok := collections[kind]
	if !ok {
		return nil, errors.Errorf("source: unsupported kind %q", kind)
	}
	var body json.RawMessage
	if err := f.http.Get(ctx, "/"+coll+"/"+url.PathEscape(id), nil, &body); err != nil {
		return nil, classify("fetch "+string(kind)+" "+id, err)
	}
	return decode(kind, body, recordRef{kind: kind, id: id, path: "body"})
}

// FetchChildren returns the entities of every child kind of kind that belong to
// parentID.
func (f *Fetcher) FetchChildren(ctx context.Context, kind entity.Kind, parentID string) ([]entity.Raw, error) {
	parent, ok := collections[kind]
	if !ok {
		return nil, errors.Errorf("source: unsupported kind %q", kind)
	}
	var out []entity.Raw
	for _, child := range kind.Children() {
		path := "/" + parent + "/" + url.PathEscape(parentID) + "/" + collections[child]
		items, err := f.pages(ctx, path)
		if err != nil {
			return nil, classify("fetch "+string(child)+" children of "+parentID, err)
		}
		for i, raw := range items {
			ref := recordRef{kind: kind, id: parentID, path: collections[child] + "[" + strconv.Itoa(i) + "]"}
			r, err := decode(child, raw, ref)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// ListOrganizations returns the client ids of every organization.
func (f *Fetcher) ListOrganizations(ctx context.Context) ([]string, error) {
	items, err := f.pages(ctx, "/organizations")
	if err != nil {
		return nil, classify("list organizations", err)
	}
	ids := make([]string, 0, len(items))
	for _, raw := range items {
		var org entity.RawOrganization
		if err := json.Unmarshal(raw, &org); err != nil {
			return nil, errors.Wrap(err, "source: decode organization")
		}
		ids = append(ids, org.ID)
	}
	return ids, nil
}

func (f *Fetcher) pages(ctx context.Context, path string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	cursor := ""
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(pageLimit))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var p page
		if err := f.http.Get(ctx, path, q, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Items...)
		if p.NextCursor == nil || strings.TrimSpace(*p.NextCursor) == "" {
			return all, nil
		}
		cursor = *p.NextCursor
	}
}

// recordRef names the entity a malformed record is reported against.
type recordRef struct {
	kind entity.Kind
	id   string
	path string
}

func decode(kind entity.Kind, body []byte, ref recordRef) (entity.Raw, error) {
	switch kind {
	case entity.KindOrganization:
		return unmarshal[entity.RawOrganization](body, ref)
	case entity.KindSchool:
		return unmarshal[entity.RawSchool](body, ref)
	case entity.KindClass:
		return unmarshal[entity.RawClass](body, ref)
	case entity.KindUser:
		return unmarshal[entity.RawUser](body, ref)
	default:
		return nil, errors.Errorf("source: unsupported kind %q", kind)
	}
}

// unmarshal reports undecodable records as validation failures; retrying
// cannot repair them.
func unmarshal[R entity.Raw](body []byte, ref recordRef) (entity.Raw, error) {
	var r R
	if err := json.Unmarshal(body, &r); err != nil {
		v := onboarderr.NewValidationError(ref.kind, ref.id)
		v.Add(ref.path, "malformed source record: "+err.Error())
		return nil, v
	}
	return r, nil
}

func classify(op string, err error) error {
	if errors.Is(err, entity.ErrNotFound) {
		return err
	}
	if workqueue.Terminal(err) {
		return errors.Wrap(err, "source: "+op)
	}
	return onboarderr.Retriable("source: "+op, err)
}
