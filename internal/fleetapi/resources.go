package fleetapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Collection names a resource collection on the fleet API.
type Collection string

// Collections exposed by the fleet API.
const (
	CollectionUser              Collection = "User"
	CollectionVehicle           Collection = "Vehicle"
	CollectionDriver            Collection = "Driver"
	CollectionVehicleInspection Collection = "Vehicle Inspection"
	CollectionInsurance         Collection = "Insurance"
	CollectionVehicleService    Collection = "Vehicle Service"
	CollectionVehicleIssue      Collection = "Vehicle Issue"
	CollectionRoleProfile       Collection = "Role Profile"
	CollectionDepartment        Collection = "Department"
	CollectionVehicleMake       Collection = "Vehicle Make"
	CollectionVehicleModel      Collection = "Vehicle Model"
	CollectionYear              Collection = "Year"
)

// Record is a single resource document as exchanged with the API.
type Record map[string]any

// ListOptions narrows a collection listing.
type ListOptions struct {
	// Fields is the projection; empty means the API default.
	Fields []string
	// Filters are passed through as the API's JSON filter list.
	Filters [][]any
	// Limit caps the page length; zero means the API default.
	Limit int
	// Offset skips that many records.
	Offset int
}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

func (c *Client) resourcePath(collection Collection, id string) string {
	p := "/api/resource/" + url.PathEscape(string(collection))
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// List fetches records of a collection.
func (c *Client) List(ctx context.Context, collection Collection, opts ListOptions) ([]Record, error) {
	query := url.Values{}
	if len(opts.Fields) > 0 {
		fields, err := json.Marshal(opts.Fields)
		if err != nil {
			return nil, fmt.Errorf("fleetapi: encode fields: %w", err)
		}
		query.Set("fields", string(fields))
	}
	if len(opts.Filters) > 0 {
		filters, err := json.Marshal(opts.Filters)
		if err != nil {
			return nil, fmt.Errorf("fleetapi: encode filters: %w", err)
		}
		query.Set("filters", string(filters))
	}
	if opts.Limit > 0 {
		query.Set("limit_page_length", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("limit_start", strconv.Itoa(opts.Offset))
	}
	var env dataEnvelope[[]Record]
	if err := c.do(ctx, http.MethodGet, c.resourcePath(collection, ""), query, nil, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return []Record{}, nil
	}
	return env.Data, nil
}

// Get fetches a single record by id.
func (c *Client) Get(ctx context.Context, collection Collection, id string) (Record, error) {
	var env dataEnvelope[Record]
	if err := c.do(ctx, http.MethodGet, c.resourcePath(collection, id), nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Create posts a new record and returns the stored document.
func (c *Client) Create(ctx context.Context, collection Collection, record Record) (Record, error) {
	var env dataEnvelope[Record]
	body := dataEnvelope[Record]{Data: record}
	if err := c.do(ctx, http.MethodPost, c.resourcePath(collection, ""), nil, body, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Update replaces fields of an existing record.
func (c *Client) Update(ctx context.Context, collection Collection, id string, record Record) (Record, error) {
	var env dataEnvelope[Record]
	body := dataEnvelope[Record]{Data: record}
	if err := c.do(ctx, http.MethodPut, c.resourcePath(collection, id), nil, body, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, collection Collection, id string) error {
	err := c.do(ctx, http.MethodDelete, c.resourcePath(collection, id), nil, nil, nil)
	return err
}
