package project

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kermanimohammad/SensorPlus-Client/internal/twinerr"
)

// ExportSensors returns the sensor list alone as indented JSON, after
// syncing every record from its handle. Environments are not included.
func (s *Serializer) ExportSensors(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.sensors.SyncAll(); err != nil {
		s.logger.WithError(err).Warn("Some sensors could not be synced before export")
	}
	out, err := json.MarshalIndent(s.sensors.Records(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode sensors: %w", err)
	}
	return out, nil
}

// ImportSensors replaces every sensor with the records in data, leaving the
// environments untouched. Flat scales are taken as base factors.
func (d *Deserializer) ImportSensors(ctx context.Context, data []byte) (*LoadReport, error) {
	var ws []SensorWire
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, &twinerr.FormatError{What: "sensor list", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	errs := twinerr.NewCollector("project.import_sensors", d.logger)
	p := &plan{}
	p.addSensors(ws, false)
	for _, err := range p.rejected {
		errs.Add(err)
	}
	errs.Merge(d.sensors.ClearAll())

	report := &LoadReport{}
	if err := d.prefabs.Wait(ctx); err != nil {
		report.Warnings = errs.Errors()
		return report, fmt.Errorf("waiting for prefab models: %w", err)
	}
	for _, rec := range p.sensors {
		if _, err := d.sensors.Create(rec); err != nil {
			errs.Add(err)
			continue
		}
		report.Sensors++
	}
	report.Warnings = errs.Errors()
	d.logger.WithField("sensors", report.Sensors).Info("Scene sensors loaded")
	return report, nil
}
