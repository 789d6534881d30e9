package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/shelf-crawler/internal/model"
)

// logSink is the dry-run crawl.Sink: it logs records instead of storing them.
type logSink struct {
	log *zap.Logger
}

func newLogSink(log *zap.Logger) *logSink {
	return &logSink{log: log.With(zap.String("component", "dry-run"))}
}

func (s *logSink) Ingest(_ context.Context, rec model.Record) (*model.Outcome, error) {
	fields := []zap.Field{
		zap.String("retailer", rec.Retailer),
		zap.String("category", rec.Category),
		zap.Time("scraped_at", rec.ScrapedAt),
	}
	if rec.ProductURL != nil {
		fields = append(fields, zap.String("product_url", *rec.ProductURL))
	}
	if rec.ProductName != nil {
		fields = append(fields, zap.String("product_name", *rec.ProductName))
	}
	if rec.Price != nil {
		fields = append(fields, zap.Float64("price", *rec.Price))
	}
	s.log.Info("record", fields...)
	return &model.Outcome{PriceRecorded: rec.Price != nil}, nil
}
