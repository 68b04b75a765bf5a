package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/redpanda-data/benthos/v4/public/service"
	"github.com/segmentio/ksuid"

	"github.com/twinfer/fam-parser/pkg/binstruct"
	"github.com/twinfer/fam-parser/pkg/fam"
)

// FAMProcessor is a Benthos processor that decodes FAM pedigree files into
// structured messages.
type FAMProcessor struct {
	config          FAMConfig
	parser          *fam.Parser
	logger          *service.Logger
	mDecoded        *service.MetricCounter
	mErrors         *service.MetricCounter
	mTruncated      *service.MetricCounter
	mRelationships  *service.MetricCounter
	mDecodeDuration *service.MetricTimer
}

// FAMConfig contains configuration parameters for the FAM processor.
type FAMConfig struct {
	SchemaPath    string `json:"schema_path" yaml:"schema_path"`
	Debug         bool   `json:"debug" yaml:"debug"`
	MaxIterations int    `json:"max_iterations" yaml:"max_iterations"`
}

func init() {
	err := service.RegisterProcessor(
		"fam",
		famProcessorConfig(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newFAMProcessorFromConfig(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

// famProcessorConfig returns a config spec for a fam processor.
func famProcessorConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Decodes FAM pedigree files into structured documents.").
		Description("Each message is one complete FAM file. The result has a metadata, family and text_fields section; relationships are listed once per couple.").
		Field(service.NewStringField("schema_path").
			Description("Path to a YAML schema describing the file layout. Leave empty to use the built-in schema.").
			Example("./schemas/fam.yml").
			Default("")).
		Field(service.NewBoolField("debug").
			Description("Keep unnamed fields in the output as raw_NNN hex strings.").
			Default(false)).
		Field(service.NewIntField("max_iterations").
			Description("Upper bound for every repeated group in a file.").
			Default(binstruct.DefaultMaxIterations)).
		Version("0.1.0")
}

// newFAMProcessorFromConfig creates a new FAMProcessor from a parsed config.
func newFAMProcessorFromConfig(conf *service.ParsedConfig, mgr *service.Resources) (*FAMProcessor, error) {
	schemaPath, err := conf.FieldString("schema_path")
	if err != nil {
		return nil, err
	}

	debug, err := conf.FieldBool("debug")
	if err != nil {
		return nil, err
	}

	maxIterations, err := conf.FieldInt("max_iterations")
	if err != nil {
		return nil, err
	}
	if maxIterations <= 0 {
		return nil, fmt.Errorf("max_iterations must be positive, got %d", maxIterations)
	}

	config := FAMConfig{
		SchemaPath:    schemaPath,
		Debug:         debug,
		MaxIterations: maxIterations,
	}

	opts := []fam.Option{
		// Benthos owns logging; the decoder's own records are dropped.
		fam.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		fam.WithDebugMode(debug),
		fam.WithMaxIterations(maxIterations),
	}
	if schemaPath != "" {
		if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("schema file not found at path: %s", schemaPath)
		}
		opts = append(opts, fam.WithSchemaFile(schemaPath))
	}

	parser := fam.NewParser(opts...)
	if err := parser.ValidateSchema(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	logger := mgr.Logger()
	metrics := mgr.Metrics()

	return &FAMProcessor{
		config:          config,
		parser:          parser,
		logger:          logger,
		mDecoded:        metrics.NewCounter("fam_decoded_files"),
		mErrors:         metrics.NewCounter("fam_decode_errors"),
		mTruncated:      metrics.NewCounter("fam_truncated_files"),
		mRelationships:  metrics.NewCounter("fam_relationships"),
		mDecodeDuration: metrics.NewTimer("fam_decode_duration"),
	}, nil
}

// Process decodes the message payload as one FAM file.
func (f *FAMProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	decodeID := ksuid.New().String()
	f.logger.Debugf("Decoding FAM file %s", decodeID)

	data, err := msg.AsBytes()
	if err != nil {
		f.logger.Errorf("Failed to get binary data from message: %v", err)
		f.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("failed to get binary data from message: %w", err))
		return service.MessageBatch{msg}, nil
	}

	if len(data) == 0 {
		f.logger.Warn("Empty binary data provided")
		f.mErrors.Incr(1)
		msg.SetError(errors.New("empty binary data provided"))
		return service.MessageBatch{msg}, nil
	}

	start := time.Now()
	tree, err := f.parser.Parse(ctx, data)
	f.mDecodeDuration.Timing(time.Since(start).Nanoseconds())
	if err != nil {
		if errors.Is(err, binstruct.ErrTruncatedInput) {
			f.mTruncated.Incr(1)
		}
		f.logger.Errorf("Failed to decode FAM file of size %d bytes: %v", len(data), err)
		f.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("failed to decode FAM file of size %d bytes: %w", len(data), err))
		return service.MessageBatch{msg}, nil
	}

	relationships := len(tree.Relationships())
	f.logger.Debugf("Decoded %d bytes with %d members and %d relationships", len(data), len(tree.Members()), relationships)
	f.mDecoded.Incr(1)
	f.mRelationships.Incr(int64(relationships))

	newMsg := service.NewMessage(nil)
	newMsg.SetStructured(tree.Data.ToMap())

	msg.MetaWalk(func(key, value string) error {
		newMsg.MetaSet(key, value)
		return nil
	})
	newMsg.MetaSet("fam_decode_id", decodeID)
	newMsg.MetaSet("fam_members", strconv.Itoa(len(tree.Members())))
	newMsg.MetaSet("fam_relationships", strconv.Itoa(relationships))
	newMsg.MetaSet("fam_skipped_bytes", strconv.FormatInt(tree.SkippedBytes, 10))
	if f.config.SchemaPath != "" {
		newMsg.MetaSet("fam_schema_path", f.config.SchemaPath)
	}

	return service.MessageBatch{newMsg}, nil
}

// Close the processor resources
func (f *FAMProcessor) Close(ctx context.Context) error {
	f.logger.Debug("Closing FAM processor and clearing schema cache")
	f.parser.ClearCache()
	return nil
}
