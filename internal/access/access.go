// Package access je jediná autorita pro pravidla přístupu k senzorům.
//
// Viditelnost senzorů:
//  1. PlatformAdmin vidí všechno.
//  2. TenantAdmin a Member vidí senzory své firmy a k tomu senzory, na které mají grant s canView.
//  3. Member bez firmy vidí jen senzory z grantů.
//
// Hub (subscribe, broadcast) i HTTP handlery volají výhradně tento balíček.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/model"
	"tenant-telemetry/internal/store"
)

// Resolver vyhodnocuje přístup principala nad registrem senzorů a granty.
type Resolver struct {
	sensors store.SensorStore
	grants  store.AccessStore
	logger  *slog.Logger
}

func NewResolver(sensors store.SensorStore, grants store.AccessStore, logger *slog.Logger) *Resolver {
	return &Resolver{sensors: sensors, grants: grants, logger: logger}
}

// VisibleSensors vrátí senzory, které principal smí vidět, v pořadí registru.
func (r *Resolver) VisibleSensors(ctx context.Context, p model.Principal) ([]model.Sensor, error) {
	all, err := r.sensors.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("načtení registru senzorů: %w", err)
	}
	if p.Role == model.RolePlatformAdmin {
		return all, nil
	}

	grants, err := r.GrantsOf(ctx, p)
	if err != nil {
		return nil, err
	}
	return Filter(p, grants, all), nil
}

// GrantsOf vrací granty udělené principalovi. PlatformAdmin granty nepotřebuje.
func (r *Resolver) GrantsOf(ctx context.Context, p model.Principal) ([]model.AccessGrant, error) {
	if p.Role == model.RolePlatformAdmin {
		return nil, nil
	}
	grants, err := r.grants.ListByUser(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("načtení grantů uživatele %s: %w", p.UserID, err)
	}
	return grants, nil
}

// HasPermission rozhodne, zda principal smí s daným senzorem provést operaci.
//
// PlatformAdmin a TenantAdmin vlastní firmy mají všechna oprávnění. Shoda firmy
// dává ostatním jen "view", edit/delete vyžaduje explicitní grant.
func (r *Resolver) HasPermission(ctx context.Context, p model.Principal, s model.Sensor, perm model.Permission) (bool, error) {
	if allowed, decided := byRole(p, s, perm); decided {
		return allowed, nil
	}

	g, err := r.grants.Get(ctx, s.ID, p.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kontrola grantu: %w", err)
	}
	return g.Allows(perm), nil
}

// byRole vyhodnotí případy, které nepotřebují grant. decided=false znamená "zeptej se grantů".
func byRole(p model.Principal, s model.Sensor, perm model.Permission) (allowed, decided bool) {
	sameCompany := p.HasCompany() && p.CompanyID == s.CompanyID

	switch {
	case p.Role == model.RolePlatformAdmin:
		return true, true
	case p.Role == model.RoleTenantAdmin && sameCompany:
		return true, true
	case sameCompany && perm == model.PermView:
		return true, true
	}
	return false, false
}

// Visible vrátí predikát viditelnosti pro principala a jeho granty.
// Čistá funkce, bez I/O: broadcast ji volá jednou na spojení a tick.
func Visible(p model.Principal, grants []model.AccessGrant) func(model.Sensor) bool {
	if p.Role == model.RolePlatformAdmin {
		return func(model.Sensor) bool { return true }
	}

	viewable := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		if g.UserID == p.UserID && g.CanView {
			viewable[g.SensorID] = struct{}{}
		}
	}

	return func(s model.Sensor) bool {
		if p.HasCompany() && s.CompanyID == p.CompanyID {
			return true
		}
		_, ok := viewable[s.ID]
		return ok
	}
}

// Filter vybere ze snímku registru senzory viditelné pro principala.
// Výsledek je bez duplicit a zachovává pořadí snímku.
func Filter(p model.Principal, grants []model.AccessGrant, snapshot []model.Sensor) []model.Sensor {
	visible := Visible(p, grants)
	seen := make(map[string]struct{}, len(snapshot))
	out := make([]model.Sensor, 0)
	for _, s := range snapshot {
		if _, dup := seen[s.ID]; dup || !visible(s) {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}
