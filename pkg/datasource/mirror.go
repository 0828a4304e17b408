package datasource

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/deskforge/deskforge/pkg/apperrors"
	"github.com/deskforge/deskforge/pkg/observability"
	"github.com/deskforge/deskforge/pkg/permissions"
	"github.com/deskforge/deskforge/pkg/records"
	"github.com/deskforge/deskforge/pkg/webhooks"
)

// MirrorActor is the synthetic actor recorded on mirrored writes
var MirrorActor = permissions.Actor{UserID: "system:mirror", Role: "system"}

// Source binds one external feed to one app. KeyField names the field
// used to match incoming rows to existing records; rows without it are
// skipped.
type Source struct {
	AppCode  string
	KeyField string
	Client   Client
}

// Mirror runs data source syncs on a cron schedule. Mirrored writes
// bypass the permission engine (they are system writes, not user
// actions) but fire the same webhook triggers so subscribers see them.
type Mirror struct {
	store     *records.Store
	appSource records.AppSource
	notifier  records.Notifier
	cron      *cron.Cron
	logger    *observability.Logger

	mu      sync.Mutex
	sources []Source
}

func NewMirror(store *records.Store, appSource records.AppSource, notifier records.Notifier, logger *observability.Logger) *Mirror {
	return &Mirror{
		store:     store,
		appSource: appSource,
		notifier:  notifier,
		cron:      cron.New(),
		logger:    logger,
	}
}

// AddSource registers a feed and schedules it. Schedule uses cron
// syntax, @every included.
func (m *Mirror) AddSource(source Source, schedule string) error {
	if source.AppCode == "" || source.KeyField == "" || source.Client == nil {
		return fmt.Errorf("data source requires app code, key field and client")
	}

	m.mu.Lock()
	m.sources = append(m.sources, source)
	m.mu.Unlock()

	_, err := m.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := m.SyncSource(ctx, source); err != nil {
			m.logger.WithField("app", source.AppCode).WithError(err).Error("data source sync failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule data source for app %q: %w", source.AppCode, err)
	}
	return nil
}

// Start begins running scheduled syncs
func (m *Mirror) Start() {
	m.cron.Start()
}

// Stop halts the schedule and waits for running syncs
func (m *Mirror) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// SyncSource runs one full sync of one source
func (m *Mirror) SyncSource(ctx context.Context, source Source) error {
	app, err := m.appSource.GetApp(ctx, source.AppCode)
	if err != nil {
		return err
	}
	if !app.IsActive {
		m.logger.WithField("app", source.AppCode).Debug("skipping sync for deleted app")
		return nil
	}

	rows, err := source.Client.FetchAll(ctx)
	if err != nil {
		return err
	}

	var created, updated, unchanged, skipped int
	for _, row := range rows {
		key, ok := row[source.KeyField].(string)
		if !ok || key == "" {
			skipped++
			continue
		}

		existing, err := m.store.GetByFieldValue(ctx, source.AppCode, source.KeyField, key)
		if err == nil {
			// An identical row is not an edit; rewriting it would spam
			// record_edited subscribers on every sync.
			if reflect.DeepEqual(existing.FieldData, row) {
				unchanged++
				continue
			}
			existing.FieldData = row
			existing.UpdatedBy = MirrorActor.UserID
			if err := m.store.Update(ctx, existing); err != nil {
				return fmt.Errorf("failed to update mirrored record %s: %w", key, err)
			}
			m.fire(app.ID, source.AppCode, webhooks.TriggerRecordEdited, existing.ID, row)
			updated++
			continue
		}
		if !apperrors.IsKind(err, apperrors.KindNotFound) {
			return err
		}

		record := &records.Record{
			AppID:     app.ID,
			AppCode:   source.AppCode,
			FieldData: row,
			CreatedBy: MirrorActor.UserID,
			UpdatedBy: MirrorActor.UserID,
		}
		if err := m.store.Insert(ctx, record); err != nil {
			return fmt.Errorf("failed to insert mirrored record %s: %w", key, err)
		}
		m.fire(app.ID, source.AppCode, webhooks.TriggerRecordAdded, record.ID, row)
		created++
	}

	m.logger.WithFields(map[string]interface{}{
		"app":       source.AppCode,
		"created":   created,
		"updated":   updated,
		"unchanged": unchanged,
		"skipped":   skipped,
	}).Info("data source sync completed")
	return nil
}

func (m *Mirror) fire(appID int64, appCode string, trigger webhooks.TriggerType, recordID string, data map[string]interface{}) {
	m.notifier.Fire(webhooks.Event{
		Trigger:  trigger,
		AppID:    appID,
		AppCode:  appCode,
		RecordID: recordID,
		Record:   data,
		Actor:    MirrorActor,
	})
}
