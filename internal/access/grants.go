package access

import (
	"context"
	"errors"
	"strings"

	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/model"
)

// ResolveSensor najde senzor podle interního ID nebo externího sensor_id.
func (r *Resolver) ResolveSensor(ctx context.Context, key string) (model.Sensor, error) {
	s, err := r.sensors.ByInternalID(ctx, key)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return model.Sensor{}, err
	}
	return r.sensors.ByExternalID(ctx, key)
}

// Grant vytvoří grant jménem aktéra.
//
// PlatformAdmin smí cokoliv, TenantAdmin jen nad senzory své firmy,
// Member granty vytvářet nesmí.
func (r *Resolver) Grant(ctx context.Context, actor model.Principal, g model.AccessGrant) (model.AccessGrant, error) {
	g.UserID = strings.TrimSpace(g.UserID)
	if g.UserID == "" || strings.TrimSpace(g.SensorID) == "" {
		return model.AccessGrant{}, apperr.Validation("sensorId a userId jsou povinné")
	}

	sensor, err := r.ResolveSensor(ctx, g.SensorID)
	if err != nil {
		return model.AccessGrant{}, err
	}
	if err := canManage(actor, sensor); err != nil {
		return model.AccessGrant{}, err
	}

	g.SensorID = sensor.ID
	g.CreatedBy = actor.UserID
	created, err := r.grants.Grant(ctx, g)
	if err != nil {
		return model.AccessGrant{}, err
	}

	r.logger.Info("Grant vytvořen", "sensor_id", sensor.SensorID, "user_id", g.UserID, "by", actor.UserID)
	return created, nil
}

// Revoke odebere grant. Member smí odebrat jen svůj vlastní grant.
func (r *Resolver) Revoke(ctx context.Context, actor model.Principal, sensorKey, userID string) error {
	sensor, err := r.ResolveSensor(ctx, sensorKey)
	if err != nil {
		return err
	}

	if actor.Role == model.RoleMember {
		if actor.UserID != userID {
			return apperr.Forbidden("uživatel může odebrat jen vlastní grant")
		}
	} else if err := canManage(actor, sensor); err != nil {
		return err
	}

	if err := r.grants.Revoke(ctx, sensor.ID, userID); err != nil {
		return err
	}

	r.logger.Info("Grant odebrán", "sensor_id", sensor.SensorID, "user_id", userID, "by", actor.UserID)
	return nil
}

func canManage(actor model.Principal, s model.Sensor) error {
	switch actor.Role {
	case model.RolePlatformAdmin:
		return nil
	case model.RoleTenantAdmin:
		if actor.HasCompany() && actor.CompanyID == s.CompanyID {
			return nil
		}
		return apperr.Forbidden("správce firmy spravuje jen senzory své firmy")
	}
	return apperr.Forbidden("nedostatečná role pro správu grantů")
}
