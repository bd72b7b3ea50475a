package records

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mimic/business/choice"
	"mimic/business/codec"
	"mimic/domain"
	"mimic/pkg/logger"
	"mimic/pkg/metrics"

	"github.com/google/uuid"
)

const stage = "records"

type WarehouseReader interface {
	ReadPartition(ctx context.Context, ref domain.TableRef, spec domain.PartitionSpec, columns []string) (domain.Table, error)
}

type ObjectStore interface {
	PutFile(ctx context.Context, bucket, key, path string) error
}

// Location is where the record file of one partition lives.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return l.Bucket + "/" + l.Key
}

// RecordLocation names the record file of a (space, dataset, split, partition).
func RecordLocation(space, dataset string, spec domain.PartitionSpec) Location {
	return Location{
		Bucket: space + "-records",
		Key:    fmt.Sprintf("%s/%s/partition=%d/data.rec", dataset, domain.TrainLabel(spec.Train), spec.Partition),
	}
}

type BuildResult struct {
	Location Location
	Groups   int
	Records  int
	Rejected int
}

type RecordService struct {
	warehouse WarehouseReader
	store     ObjectStore
	tempDir   string
}

func NewRecordService(warehouse WarehouseReader, store ObjectStore, tempDir string) *RecordService {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &RecordService{
		warehouse: warehouse,
		store:     store,
		tempDir:   tempDir,
	}
}

// Build reads one partition of decisions, collapses it and uploads the record
// file. Rejected groups are logged and counted; the file holds the rest.
// With FailFast the first rejected group aborts the build before upload.
func (s *RecordService) Build(ctx context.Context, job domain.RecordJob) (BuildResult, error) {
	if err := ctx.Err(); err != nil {
		return BuildResult{}, fmt.Errorf("context error: %w", err)
	}
	start := time.Now()

	spec := job.PartitionSpec
	spec.Column = domain.ColumnDecision
	if err := spec.Validate(); err != nil {
		return BuildResult{}, err
	}

	collapser, err := choice.NewCollapser(job.CollapseConfig)
	if err != nil {
		return BuildResult{}, fmt.Errorf("collapse config: %w", err)
	}
	schema := domain.ChoiceSchema{Features: job.Features, ChoiceColumn: job.ChoiceColumn}

	table, err := s.warehouse.ReadPartition(ctx, job.TableRef, spec, schema.Columns())
	if err != nil {
		return BuildResult{}, fmt.Errorf("read partition %d of %s: %w", spec.Partition, job.TableRef, err)
	}

	groups, err := choice.Group(table, schema)
	if err != nil {
		return BuildResult{}, err
	}

	rows, err := collapser.Collapse(groups)
	if err != nil {
		if job.FailFast {
			metrics.GroupErrors.WithLabelValues(stage, domain.ErrorKind(err)).Inc()
			return BuildResult{}, err
		}
		reportRejected(job, err)
	}
	metrics.GroupsCollapsed.WithLabelValues(stage).Add(float64(len(rows)))

	loc := RecordLocation(job.Space, job.Dataset, spec)
	if err := s.writeAndUpload(ctx, codec.SchemaOf(job.CollapseConfig), rows, loc); err != nil {
		return BuildResult{}, err
	}
	metrics.RecordsWritten.Add(float64(len(rows)))
	metrics.PartitionDuration.WithLabelValues(stage, domain.TrainLabel(spec.Train)).Observe(time.Since(start).Seconds())

	res := BuildResult{
		Location: loc,
		Groups:   len(groups),
		Records:  len(rows),
		Rejected: len(groups) - len(rows),
	}
	logger.Info("Record file uploaded",
		"run_id", logger.RunIDFromContext(ctx),
		"location", loc.String(),
		"groups", res.Groups,
		"records", res.Records,
		"rejected", res.Rejected,
		"largest_group", choice.MaxGroupSize(groups),
	)
	return res, nil
}

func (s *RecordService) writeAndUpload(ctx context.Context, schema codec.Schema, rows []domain.CollapsedRow, loc Location) error {
	path := filepath.Join(s.tempDir, uuid.NewString()+".rec")
	defer os.Remove(path)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create record file: %w", err)
	}

	w, err := codec.NewWriter(f, schema)
	if err != nil {
		f.Close()
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("flush record file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close record file: %w", err)
	}

	if err := s.store.PutFile(ctx, loc.Bucket, loc.Key, path); err != nil {
		return fmt.Errorf("upload %s: %w", loc, err)
	}
	return nil
}

func reportRejected(job domain.RecordJob, err error) {
	for _, e := range choice.Rejections(err) {
		metrics.GroupErrors.WithLabelValues(stage, domain.ErrorKind(e)).Inc()
		logger.Warn("Decision group rejected",
			"table", job.TableRef.String(),
			"partition", job.Partition,
			"kind", domain.ErrorKind(e),
			"error", e,
		)
	}
}
