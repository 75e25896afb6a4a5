// Package resources exposes the fleet API collections to the console behind
// per-module permission checks.
package resources

import (
	"context"

	"github.com/leofleet/fleet-console/internal/fleetapi"
	"github.com/leofleet/fleet-console/internal/rbac"
)

// Store is the fleet API resource surface. *fleetapi.Client satisfies it.
type Store interface {
	List(ctx context.Context, collection fleetapi.Collection, opts fleetapi.ListOptions) ([]fleetapi.Record, error)
	Get(ctx context.Context, collection fleetapi.Collection, id string) (fleetapi.Record, error)
	Create(ctx context.Context, collection fleetapi.Collection, record fleetapi.Record) (fleetapi.Record, error)
	Update(ctx context.Context, collection fleetapi.Collection, id string, record fleetapi.Record) (fleetapi.Record, error)
	Delete(ctx context.Context, collection fleetapi.Collection, id string) error
}

// Kind binds a URL slug to a fleet API collection and the module guarding it.
// Reference kinds carry no module: any signed-in user may read them and
// nobody may change them through the console.
type Kind struct {
	Slug       string
	Collection fleetapi.Collection
	Module     rbac.Module
	Fields     []string
}

// Reference reports whether k is a read-only lookup collection.
func (k Kind) Reference() bool {
	return k.Module == ""
}

// Catalog lists every collection served by the console.
func Catalog() []Kind {
	return []Kind{
		{Slug: "users", Collection: fleetapi.CollectionUser, Module: rbac.ModuleUser,
			Fields: []string{"name", "full_name", "email", "role_profile_name", "enabled"}},
		{Slug: "vehicles", Collection: fleetapi.CollectionVehicle, Module: rbac.ModuleVehicle},
		{Slug: "drivers", Collection: fleetapi.CollectionDriver, Module: rbac.ModuleDriver},
		{Slug: "inspections", Collection: fleetapi.CollectionVehicleInspection, Module: rbac.ModuleInspection},
		{Slug: "insurance", Collection: fleetapi.CollectionInsurance, Module: rbac.ModuleInsurance},
		{Slug: "services", Collection: fleetapi.CollectionVehicleService, Module: rbac.ModuleService},
		{Slug: "issues", Collection: fleetapi.CollectionVehicleIssue, Module: rbac.ModuleIssue},
		{Slug: "role-profiles", Collection: fleetapi.CollectionRoleProfile},
		{Slug: "departments", Collection: fleetapi.CollectionDepartment},
		{Slug: "vehicle-makes", Collection: fleetapi.CollectionVehicleMake},
		{Slug: "vehicle-models", Collection: fleetapi.CollectionVehicleModel},
		{Slug: "years", Collection: fleetapi.CollectionYear},
	}
}

// Page is one page of a listing.
type Page struct {
	Data    []fleetapi.Record `json:"data"`
	Page    int               `json:"page"`
	PerPage int               `json:"perPage"`
	// Stale marks reference data served from cache after an upstream failure.
	Stale bool `json:"stale,omitempty"`
}
