package bomimport

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AnimaI/SMD-Manager/catalog"
	"github.com/AnimaI/SMD-Manager/config"
	"github.com/AnimaI/SMD-Manager/utils"
)

// MaxUploadSize is the largest BOM file accepted.
const MaxUploadSize = 5 * 1024 * 1024

var ErrFileTooLarge = errors.New("file too large (max. 5 MB)")

var tracer = otel.Tracer("github.com/AnimaI/SMD-Manager/bomimport")

// Result summarizes a finished import.
type Result struct {
	TrackingID string      `json:"tracking_id"`
	Device     string      `json:"device"`
	DeviceID   int         `json:"device_id"`
	Successful int         `json:"successful_parts"`
	Failed     []FailedRow `json:"failed_parts"`
	NewParts   int         `json:"new_parts"`
	Message    string      `json:"message"`
}

type Option func(*Importer)

func WithArchiver(a Archiver) Option {
	return func(i *Importer) { i.archive = a }
}

func WithPublisher(p Publisher) Option {
	return func(i *Importer) { i.events = p }
}

// Importer reconciles uploaded BOM files against the inventory.
type Importer struct {
	store    Store
	resolver Resolver
	tracker  *Tracker
	locker   DeviceLocker
	archive  Archiver
	events   Publisher
	logger   logrus.FieldLogger
	newID    func() string
	now      func() time.Time
}

// NewImporter wires an importer. resolver may be nil, in which case parts
// missing from the inventory cannot be resolved.
func NewImporter(store Store, resolver Resolver, tracker *Tracker, locker DeviceLocker, logger logrus.FieldLogger, opts ...Option) *Importer {
	if logger == nil {
		logger = config.GetLogger()
	}
	if locker == nil {
		locker = NewLocalDeviceLocker()
	}
	i := &Importer{
		store:    store,
		resolver: resolver,
		tracker:  tracker,
		locker:   locker,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Importer) Tracker() *Tracker {
	return i.tracker
}

// Start registers a job, parses the file synchronously and hands the rest
// of the work to a background goroutine. The tracking id is returned even
// when parsing fails so that the failure can be polled.
func (i *Importer) Start(ctx context.Context, filename string, data []byte) (string, error) {
	id := i.newID()
	i.tracker.Start(ctx, id, "Uploading file...")

	if len(data) > MaxUploadSize {
		i.tracker.Fail(ctx, id, "Error processing BOM: "+ErrFileTooLarge.Error())
		ImportJobsTotal.WithLabelValues(string(StatusError)).Inc()
		return id, ErrFileTooLarge
	}

	bom, err := ParseFile(filename, data)
	if err != nil {
		i.tracker.Fail(ctx, id, "Error processing BOM: "+err.Error())
		ImportJobsTotal.WithLabelValues(string(StatusError)).Inc()
		return id, err
	}
	i.tracker.Progress(ctx, id, 30, "Starting BOM import...")

	// The job outlives the request that started it.
	jobCtx := utils.SetTrackingIdInContext(context.WithoutCancel(ctx), id)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				config.LogError(i.logger, "bomimport", "Importer.Start", "import worker panicked", string(debug.Stack()), fmt.Errorf("%v", r))
				i.tracker.Fail(jobCtx, id, fmt.Sprintf("Error processing BOM: %v", r))
			}
		}()
		i.archiveUpload(jobCtx, id, bom.DeviceName, filename, data)
		_, _ = i.Run(jobCtx, id, bom)
	}()

	return id, nil
}

// Run performs the reconciliation for an already parsed BOM and records its
// progress under trackingID.
func (i *Importer) Run(ctx context.Context, trackingID string, bom *ParsedBOM) (*Result, error) {
	ctx, span := tracer.Start(ctx, "bomimport.Run", trace.WithAttributes(
		attribute.String("bom.device", bom.DeviceName),
		attribute.Int("bom.rows", bom.TotalRows),
	))
	defer span.End()

	started := i.now()
	res, err := i.run(ctx, trackingID, bom)
	ImportDuration.Observe(time.Since(started).Seconds())

	event := ImportEvent{
		TrackingID: trackingID,
		Device:     bom.DeviceName,
		FinishedAt: i.now(),
	}
	if id, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		event.CorrelationId = id
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		message := "Error processing BOM: " + err.Error()
		i.tracker.Fail(ctx, trackingID, message)
		ImportJobsTotal.WithLabelValues(string(StatusError)).Inc()
		config.LogError(i.logger, "bomimport", "Importer.Run", "import failed", logrus.Fields{"tracking_id": trackingID, "device": bom.DeviceName}, err)

		event.Status, event.Message = StatusError, message
		i.publish(ctx, event)
		return nil, err
	}

	i.tracker.Complete(ctx, trackingID, res.Message, res.Failed)
	ImportJobsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	i.logger.WithFields(logrus.Fields{
		"module":      "bomimport",
		"tracking_id": trackingID,
		"device":      res.Device,
		"successful":  res.Successful,
		"failed":      len(res.Failed),
		"new_parts":   res.NewParts,
	}).Info("BOM import finished")

	event.Status, event.Message = StatusCompleted, res.Message
	event.SuccessfulParts, event.FailedParts, event.NewParts = res.Successful, len(res.Failed), res.NewParts
	i.publish(ctx, event)
	return res, nil
}

func (i *Importer) run(ctx context.Context, id string, bom *ParsedBOM) (*Result, error) {
	i.tracker.Progress(ctx, id, 35, "Reading BOM file...")
	i.tracker.Progress(ctx, id, 40, "Analyzing BOM headers...")

	total := bom.TotalRows
	i.tracker.Update(ctx, id, func(s *JobState) {
		s.Progress = 45
		s.Message = fmt.Sprintf("%d components found, beginning processing...", total)
		s.Details = JobDetails{Device: bom.DeviceName, TotalParts: total}
	})

	var (
		lines      []BomLine
		failed     []FailedRow
		seen       = make(map[string]int) // folded identifier -> index in lines
		byPart     = make(map[int]int)    // part id -> index in lines
		unresolved = make(map[string]string)
		successful int
	)
	for _, row := range bom.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		progress := 45
		if total > 0 {
			progress = 45 + row.Index*35/total
		}
		processed := row.Index + 1
		i.tracker.Update(ctx, id, func(s *JobState) {
			s.Progress = progress
			s.Message = fmt.Sprintf("Processing part %d of %d: %s...", processed, total, row.CatalogNumber)
			s.Details.ProcessedParts = processed
			s.Details.SuccessfulParts = successful
		})

		if err := utils.ValidateInput(row.CatalogNumber, MaxIdentifierLength); err != nil {
			failed = append(failed, FailedRow{CatalogNumber: row.CatalogNumber, Error: "Invalid DigiKey number: " + err.Error()})
			ImportRowsTotal.WithLabelValues("invalid").Inc()
			continue
		}

		qty, ok := ParseQuantity(row.Quantity)
		if !ok {
			i.logger.WithFields(logrus.Fields{
				"module":      "bomimport",
				"tracking_id": id,
				"line":        row.Line,
				"quantity":    row.Quantity,
			}).Warn("invalid quantity, using 1")
		}

		// Catalog numbers compare case-insensitively in the store.
		key := strings.ToUpper(row.CatalogNumber)
		if idx, dup := seen[key]; dup {
			lines[idx].Quantity += qty
			successful++
			ImportRowsTotal.WithLabelValues("merged").Inc()
			continue
		}
		if reason, dup := unresolved[key]; dup {
			failed = append(failed, FailedRow{CatalogNumber: row.CatalogNumber, Error: reason})
			ImportRowsTotal.WithLabelValues("failed").Inc()
			continue
		}

		part, reason, err := i.resolve(ctx, row.CatalogNumber)
		if err != nil {
			return nil, err
		}
		if part == nil {
			unresolved[key] = reason
			failed = append(failed, FailedRow{CatalogNumber: row.CatalogNumber, Error: reason})
			ImportRowsTotal.WithLabelValues("failed").Inc()
			continue
		}

		if part.ID != 0 {
			if idx, dup := byPart[part.ID]; dup {
				seen[key] = idx
				lines[idx].Quantity += qty
				successful++
				ImportRowsTotal.WithLabelValues("merged").Inc()
				continue
			}
			byPart[part.ID] = len(lines)
		}
		seen[key] = len(lines)
		lines = append(lines, BomLine{Part: *part, Quantity: qty})
		successful++
		ImportRowsTotal.WithLabelValues("resolved").Inc()
	}

	i.tracker.Progress(ctx, id, 80, "Saving new parts to the database...")
	unlock, err := i.locker.Lock(ctx, bom.DeviceName)
	if err != nil {
		return nil, err
	}
	defer unlock()

	i.tracker.Progress(ctx, id, 90, "Connecting parts to the device...")
	replaced, err := i.store.ReplaceBom(ctx, bom.DeviceName, lines)
	if err != nil {
		return nil, fmt.Errorf("save BOM: %w", err)
	}

	res := &Result{
		TrackingID: id,
		Device:     bom.DeviceName,
		DeviceID:   replaced.DeviceID,
		Successful: successful,
		Failed:     failed,
		NewParts:   replaced.NewParts,
	}
	if len(failed) > 0 {
		res.Message = fmt.Sprintf("BOM for '%s' imported with warnings. %d parts successful, %d parts need attention.", bom.DeviceName, successful, len(failed))
	} else {
		res.Message = fmt.Sprintf("BOM for '%s' successfully imported. All %d parts were successfully entered.", bom.DeviceName, successful)
	}
	i.tracker.Update(ctx, id, func(s *JobState) {
		s.Details.ProcessedParts = total
		s.Details.SuccessfulParts = successful
	})
	return res, nil
}

// resolve finds a part in the inventory or, failing that, in the catalog.
// A nil part with a reason is a row-level failure; a non-nil error ends the
// job.
func (i *Importer) resolve(ctx context.Context, number string) (*PartRecord, string, error) {
	part, err := i.store.FindPartByCatalogNumber(ctx, number)
	if err != nil {
		return nil, "", fmt.Errorf("look up part %s: %w", number, err)
	}
	if part != nil {
		return part, "", nil
	}

	if !catalog.IsCatalogNumber(number) {
		return nil, "Part could not be resolved: not in inventory and not a DigiKey number", nil
	}
	if i.resolver == nil {
		return nil, "Part could not be resolved: catalog lookup is not configured", nil
	}

	product, err := i.resolver.FetchByID(ctx, number)
	if err != nil {
		return nil, "Part could not be resolved: " + err.Error(), nil
	}

	mpn := product.ManufacturerNumber
	if mpn == "" {
		mpn = number
	}
	description := product.Description
	if description == "" {
		description = catalog.NoDescription
	}
	return &PartRecord{PartNumber: mpn, Description: description, CatalogNumber: number}, "", nil
}

func (i *Importer) archiveUpload(ctx context.Context, id, device, filename string, data []byte) {
	if i.archive == nil {
		return
	}
	object := archiveObjectName(device, id, filename)
	if err := i.archive.Archive(ctx, object, contentTypeFor(filename), data); err != nil {
		config.LogError(i.logger, "bomimport", "Importer.archiveUpload", "could not archive upload", object, err)
	}
}

func (i *Importer) publish(ctx context.Context, event ImportEvent) {
	if i.events == nil {
		return
	}
	if err := i.events.Publish(ctx, event); err != nil {
		config.LogError(i.logger, "bomimport", "Importer.publish", "could not publish import event", event.TrackingID, err)
	}
}
