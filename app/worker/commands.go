package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mimic/business/codec"
	"mimic/business/contrast"
	"mimic/business/exampledata"
	"mimic/business/experiment"
	"mimic/business/inference"
	"mimic/business/records"
	"mimic/domain"
	"mimic/internal/repository/objectstore"
	psqlRepo "mimic/internal/repository/postgres"
	"mimic/pkg/config"
	"mimic/pkg/database"
	"mimic/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

type worker struct {
	cfg      *config.Config
	validate *validator.Validate
	db       *gorm.DB
	store    *objectstore.Store
}

func (w *worker) init(c *cli.Context) error {
	cfg, err := config.Load(false)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	w.cfg = cfg
	w.validate = validator.New()

	level := cfg.Log.Level
	if c.String("log-level") != "" {
		level = c.String("log-level")
	}
	logger.Init(cfg.App.Environment,
		logger.WithLevel(level),
		logger.WithFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays),
	)
	return nil
}

func (w *worker) database() (*gorm.DB, error) {
	if w.db == nil {
		db, err := database.InitPostgres(w.cfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		w.db = db
	}
	return w.db, nil
}

func (w *worker) objectStore() (*objectstore.Store, error) {
	if w.store == nil {
		store, err := objectstore.New(w.cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		w.store = store
	}
	return w.store, nil
}

// payload decodes and validates the single JSON argument of a job command.
func (w *worker) payload(c *cli.Context, v any) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one JSON payload argument", 2)
	}
	dec := json.NewDecoder(strings.NewReader(c.Args().First()))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return cli.Exit(fmt.Sprintf("invalid payload: %v", err), 2)
	}
	if err := w.validate.Struct(v); err != nil {
		return cli.Exit(fmt.Sprintf("invalid payload: %v", err), 2)
	}
	return nil
}

func (w *worker) buildRecords(c *cli.Context) error {
	var job domain.RecordJob
	if err := w.payload(c, &job); err != nil {
		return err
	}
	db, err := w.database()
	if err != nil {
		return err
	}
	store, err := w.objectStore()
	if err != nil {
		return err
	}

	svc := records.NewRecordService(psqlRepo.NewWarehouseRepository(db), store, w.cfg.App.TempDir)
	_, err = svc.Build(c.Context, job)
	return err
}

func (w *worker) inspectRecords(c *cli.Context) error {
	var job domain.RecordJob
	if err := w.payload(c, &job); err != nil {
		return err
	}
	store, err := w.objectStore()
	if err != nil {
		return err
	}

	loc := records.RecordLocation(job.Space, job.Dataset, job.PartitionSpec)
	path := filepath.Join(w.cfg.App.TempDir, uuid.NewString()+".rec")
	defer os.Remove(path)
	if err := store.GetFile(c.Context, loc.Bucket, loc.Key, path); err != nil {
		return err
	}

	return summarizeRecords(path, codec.SchemaOf(job.CollapseConfig), loc)
}

func summarizeRecords(path string, schema codec.Schema, loc records.Location) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := codec.NewReader(f, schema)
	if err != nil {
		return err
	}
	rows, err := r.ReadAll()
	if err != nil {
		return err
	}

	bySlot := make([]int, schema.MaxChoices)
	for _, row := range rows {
		bySlot[row.SelectedSlot]++
	}
	logger.Info("Record file summary",
		"location", loc.String(),
		"records", len(rows),
		"record_size", schema.RecordSize(),
		"selected_by_slot", bySlot,
	)
	return nil
}

func (w *worker) buildContrast(c *cli.Context) error {
	var job domain.ContrastJob
	if err := w.payload(c, &job); err != nil {
		return err
	}
	db, err := w.database()
	if err != nil {
		return err
	}

	_, err = contrast.NewContrastService(psqlRepo.NewWarehouseRepository(db)).Build(c.Context, job)
	return err
}

func (w *worker) infer(c *cli.Context) error {
	var job domain.InferenceJob
	if err := w.payload(c, &job); err != nil {
		return err
	}
	db, err := w.database()
	if err != nil {
		return err
	}
	store, err := w.objectStore()
	if err != nil {
		return err
	}

	_, err = inference.NewInferenceService(psqlRepo.NewWarehouseRepository(db), store).Run(c.Context, job)
	return err
}

func (w *worker) setupExperiment(c *cli.Context) error {
	var cfg domain.ExperimentConfig
	if err := w.payload(c, &cfg); err != nil {
		return err
	}
	db, err := w.database()
	if err != nil {
		return err
	}
	if err := psqlRepo.Migrate(db); err != nil {
		return fmt.Errorf("migrate experiment tables: %w", err)
	}
	store, err := w.objectStore()
	if err != nil {
		return err
	}

	return experiment.NewExperimentService(psqlRepo.NewExperimentRepository(db), store).Setup(c.Context, cfg)
}

func (w *worker) createExampleData(c *cli.Context) error {
	db, err := w.database()
	if err != nil {
		return err
	}

	ref := domain.TableRef{Schema: c.String("database"), Table: c.String("table")}
	return exampledata.Create(c.Context, psqlRepo.NewWarehouseRepository(db), ref, exampledata.Options{
		Individuals: c.Int("individuals"),
		Decisions:   c.Int("decisions"),
		Seed:        c.Int64("seed"),
	})
}
