package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type emergencyAuditor interface {
	Audit(ctx context.Context) (int, error)
}

type EmergencyAuditJobParams struct {
	Logger  *logger.Logger
	Auditor emergencyAuditor
}

func NewEmergencyAuditJob(params EmergencyAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Auditor == nil {
		return nil, fmt.Errorf("emergency auditor required")
	}
	return &emergencyAuditJob{logg: params.Logger, auditor: params.Auditor}, nil
}

type emergencyAuditJob struct {
	logg    *logger.Logger
	auditor emergencyAuditor
}

func (j *emergencyAuditJob) Name() string { return "emergency-inventory-audit" }

func (j *emergencyAuditJob) Run(ctx context.Context) error {
	recorded, err := j.auditor.Audit(ctx)
	if err != nil {
		return fmt.Errorf("emergency audit: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "items_recorded", recorded), "emergency inventory audit complete")
	return nil
}
