// Package directory is the HTTP client for the target platform directory.
package directory

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/modules/onboarding/domain/onboarderr"
	"github.com/iota-uz/onboarding/modules/onboarding/infrastructure/httpjson"
	"github.com/iota-uz/onboarding/modules/onboarding/services"
	"github.com/iota-uz/onboarding/pkg/configuration"
	"github.com/iota-uz/onboarding/pkg/workqueue"
)

type Client struct {
	http *httpjson.Client
}

var _ services.Directory = (*Client)(nil)

func New(opts configuration.DirectoryOptions, log *logrus.Entry) (*Client, error) {
	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	if log != nil {
		log = log.WithField("component", "directory")
	}
	c, err := httpjson.New(httpjson.Options{
		BaseURL:    opts.BaseURL,
		Header:     header,
		Timeout:    opts.Timeout,
		MaxRetries: opts.MaxRetries,
		RPS:        opts.RPS,
		Logger:     log,
	})
	if err != nil {
		return nil, errors.Wrap(err, "directory client")
	}
	return &Client{http: c}, nil
}

// NewWithHTTP wraps an already configured JSON client.
func NewWithHTTP(c *httpjson.Client) *Client {
	return &Client{http: c}
}

// OrganizationExists looks an organization up by name. Unknown names return
// entity.ErrNotFound.
func (c *Client) OrganizationExists(ctx context.Context, name string) (entity.TargetOrganization, error) {
	var org entity.TargetOrganization
	err := c.http.Get(ctx, "/organizations/lookup", url.Values{"name": {name}}, &org)
	if err != nil {
		return entity.TargetOrganization{}, classify("lookup organization", err)
	}
	return org, nil
}

func (c *Client) SystemPrograms(ctx context.Context) ([]entity.NamedID, error) {
	return c.list(ctx, "list system programs", "/programs/system")
}

func (c *Client) SystemRoles(ctx context.Context) ([]entity.NamedID, error) {
	return c.list(ctx, "list system roles", "/roles/system")
}

func (c *Client) CustomProgramsForOrg(ctx context.Context, targetOrgID string) ([]entity.NamedID, error) {
	return c.list(ctx, "list organization programs", "/organizations/"+url.PathEscape(targetOrgID)+"/programs")
}

func (c *Client) CustomRolesForOrg(ctx context.Context, targetOrgID string) ([]entity.NamedID, error) {
	return c.list(ctx, "list organization roles", "/organizations/"+url.PathEscape(targetOrgID)+"/roles")
}

func (c *Client) list(ctx context.Context, op, path string) ([]entity.NamedID, error) {
	var out []entity.NamedID
	if err := c.http.Get(ctx, path, nil, &out); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// classify keeps not-found and rejected requests as they are and marks every
// other failure retriable.
func classify(op string, err error) error {
	if errors.Is(err, entity.ErrNotFound) {
		return err
	}
	if workqueue.Terminal(err) {
		return errors.Wrap(err, "directory: "+op)
	}
	return onboarderr.Retriable("directory: "+op, err)
}
