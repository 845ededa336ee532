// Package report orchestrates the reporting pipeline: validate the inbound
// order payload, resolve jurisdictions, apply per-jurisdiction rules, build
// the message, derive the output file name, and hand the bytes to storage.
// Each record's failure is isolated; a batch continues past it.
package report

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/meridian-health/hl7-reporter/internal/hl7"
	"github.com/meridian-health/hl7-reporter/internal/jurisdiction"
	"github.com/meridian-health/hl7-reporter/internal/record"
	"github.com/meridian-health/hl7-reporter/internal/rules"
)

// Storage writes a finished message under a logical key.
type Storage interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Processor runs the reporting pipeline for one invocation. The jurisdiction
// store caches configuration for the invocation's duration; the processor
// itself holds no per-record state.
type Processor struct {
	store     *jurisdiction.Store
	storage   Storage
	mapping   rules.Mapping
	logger    zerolog.Logger
	reprocess bool
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithReprocess allows already-delivered records to be processed again.
func WithReprocess(reprocess bool) ProcessorOption {
	return func(p *Processor) { p.reprocess = reprocess }
}

// WithRuleMapping overrides the deployed jurisdiction rule configuration.
func WithRuleMapping(m rules.Mapping) ProcessorOption {
	return func(p *Processor) { p.mapping = m }
}

// NewProcessor wires a processor over the jurisdiction store and the storage
// collaborator.
func NewProcessor(store *jurisdiction.Store, storage Storage, logger zerolog.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:   store,
		storage: storage,
		mapping: rules.DefaultMapping,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessBatch runs every payload of a batch through the pipeline. Per-record
// errors are logged and do not abort sibling records.
func (p *Processor) ProcessBatch(ctx context.Context, payloads []map[string]any) {
	for _, payload := range payloads {
		if err := p.ProcessOrder(ctx, payload); err != nil {
			p.logger.Warn().Err(err).Msg("HL7 message error")
		}
	}
}

// ProcessOrder runs one order payload through the pipeline. Ineligible,
// duplicate, and unmapped records are logged and skipped without error;
// validation failures are returned to the caller.
func (p *Processor) ProcessOrder(ctx context.Context, payload map[string]any) error {
	rec, err := record.New(payload, p.store.Master(), p.logger, record.WithReprocess(p.reprocess))
	if err != nil {
		if errors.Is(err, record.ErrDuplicateMessage) {
			p.logger.Warn().Err(err).Msg("duplicate HL7 message, skipping record")
			return nil
		}
		return err
	}
	logger := rec.Logger()

	if !rec.MessageRequired() {
		logger.Info().Msg("test result does not require a message, skipping record")
		return nil
	}

	if len(rec.DOHs()) == 0 {
		logger.Warn().Str("org_id", rec.OrgID()).Msg("no jurisdiction mapped for facility, skipping record")
		return nil
	}

	for _, doh := range rec.DOHs() {
		p.processJurisdiction(ctx, rec, doh, logger.With().Str("doh", doh).Logger())
	}
	return nil
}

// processJurisdiction builds and stores one jurisdiction's message. Failures
// abort only this jurisdiction, never the record's siblings.
func (p *Processor) processJurisdiction(ctx context.Context, rec *record.OrderRecord, doh string, logger zerolog.Logger) {
	outcome, err := rules.Evaluate(rec, doh, p.mapping)
	if err != nil {
		logger.Error().Err(err).Msg("jurisdiction rule evaluation failed")
		return
	}
	if outcome.Suppressed {
		logger.Warn().Strs("reasons", outcome.Reasons).Msg("jurisdiction rules suppressed the message")
		return
	}

	cfg, err := p.store.Config(doh)
	if err != nil {
		logger.Error().Err(err).Msg("loading jurisdiction configuration failed")
		return
	}

	logger.Info().Msg("constructing HL7 message")
	message, err := hl7.BuildMessage(hl7.BuildInput{
		Rec:    rec,
		Cfg:    cfg,
		Master: p.store.Master(),
		Mode:   outcome.FacilityMode,
		DOH:    doh,
	})
	if err != nil {
		logger.Error().Err(err).Msg("building HL7 message failed")
		return
	}

	ext, err := FileExtension(cfg.Logic.FileFormat)
	if err != nil {
		logger.Error().Err(err).Msg("jurisdiction file format is not valid")
		return
	}

	key := cfg.Logic.FileLocation + "/" + TestFileName(doh, rec.OrderID()) + ext
	logger.Info().Str("key", key).Msg("dropping file")
	if err := p.storage.Put(ctx, key, []byte(message)); err != nil {
		logger.Error().Err(err).Msg("storing HL7 message failed")
		return
	}

	logger.Info().Msg("HL7 message generation complete")
}

// ProcessVaccinationBatch runs every vaccination payload of a batch through
// the pipeline. Per-record errors are logged and do not abort sibling records.
func (p *Processor) ProcessVaccinationBatch(ctx context.Context, payloads []map[string]any) {
	for i, payload := range payloads {
		if err := p.ProcessVaccination(ctx, payload, i); err != nil {
			p.logger.Warn().Err(err).Msg("HL7 message error")
		}
	}
}

// ProcessVaccination runs one vaccination payload through the pipeline. The
// index numbers the record within its batch; Texas file naming uses it.
func (p *Processor) ProcessVaccination(ctx context.Context, payload map[string]any, index int) error {
	rec, err := record.New(payload, p.store.Master(), p.logger, record.WithReprocess(p.reprocess))
	if err != nil {
		if errors.Is(err, record.ErrDuplicateMessage) {
			p.logger.Warn().Err(err).Msg("duplicate HL7 message, skipping record")
			return nil
		}
		return err
	}
	logger := rec.Logger()

	if len(rec.DOHs()) == 0 {
		logger.Warn().Str("org_id", rec.OrgID()).Msg("no jurisdiction mapped for facility, skipping record")
		return nil
	}

	for _, doh := range rec.DOHs() {
		p.processVaxJurisdiction(ctx, rec, doh, index, logger.With().Str("doh", doh).Logger())
	}
	return nil
}

func (p *Processor) processVaxJurisdiction(ctx context.Context, rec *record.OrderRecord, doh string, index int, logger zerolog.Logger) {
	cfg, err := p.store.Config(doh)
	if err != nil {
		logger.Error().Err(err).Msg("loading jurisdiction configuration failed")
		return
	}

	logger.Info().Msg("constructing HL7 vaccination message")
	message, err := hl7.BuildVaxMessage(hl7.BuildInput{
		Rec:    rec,
		Cfg:    cfg,
		Master: p.store.Master(),
		Mode:   record.FacilityDefault,
		DOH:    doh,
	})
	if err != nil {
		logger.Error().Err(err).Msg("building HL7 vaccination message failed")
		return
	}

	ext, err := FileExtension(cfg.Logic.FileFormat)
	if err != nil {
		logger.Error().Err(err).Msg("jurisdiction file format is not valid")
		return
	}

	vaccinationDate := vaxDate(rec.OrderField("vaccine_administered_at"))
	key := cfg.Logic.FileLocation + "/" + VaxFileName(doh, rec.OrderID(), index, vaccinationDate) + ext
	logger.Info().Str("key", key).Msg("dropping file")
	if err := p.storage.Put(ctx, key, []byte(message)); err != nil {
		logger.Error().Err(err).Msg("storing HL7 vaccination message failed")
		return
	}

	logger.Info().Msg("HL7 vaccination message generation complete")
}

// vaxDate reduces the administered-at timestamp to its compact YYYYMMDD date
// portion for jurisdictions that fold it into the file name.
func vaxDate(administeredAt string) string {
	if len(administeredAt) > 10 {
		administeredAt = administeredAt[:10]
	}
	return strings.ReplaceAll(administeredAt, "-", "")
}
