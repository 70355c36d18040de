package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"time"

	"github.com/datalith/dq-check-workflow/report"
)

const (
	reportFileName   = "report.json"
	markdownFileName = "report.md"
	workbookFileName = "summary.xlsx"
)

// ReportStore persists one compiled report per invocation under
// {prefix}/{database}/{table}/{timestamp}/. The JSON report is the
// durable artifact; the markdown rendering and the spreadsheet are
// best-effort companions whose failures never fail the save.
type ReportStore struct {
	client Client
	prefix string

	// timeNow is swappable for tests.
	timeNow func() time.Time
}

func NewReportStore(client Client, prefix string) *ReportStore {
	return &ReportStore{
		client:  client,
		prefix:  prefix,
		timeNow: time.Now,
	}
}

// Save writes the report and returns the location of the JSON artifact.
func (s *ReportStore) Save(ctx context.Context, rep *report.QualityReport) (string, error) {
	base := s.basePath(rep)
	jsonKey := path.Join(base, reportFileName)

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error marshaling report: %w", err)
	}
	if err := s.client.Write(ctx, jsonKey, data, "application/json"); err != nil {
		return s.client.Location(jsonKey), err
	}

	mdKey := path.Join(base, markdownFileName)
	if err := s.client.Write(ctx, mdKey, []byte(report.RenderMarkdown(rep)), "text/markdown"); err != nil {
		log.Printf("Warning: failed to write markdown report to %s: %v", mdKey, err)
	}

	if workbook, err := ChecksWorkbook(rep); err != nil {
		log.Printf("Warning: failed to build checks workbook: %v", err)
	} else {
		xlsxKey := path.Join(base, workbookFileName)
		mime := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		if err := s.client.Write(ctx, xlsxKey, workbook, mime); err != nil {
			log.Printf("Warning: failed to write checks workbook to %s: %v", xlsxKey, err)
		}
	}

	return s.client.Location(jsonKey), nil
}

func (s *ReportStore) Close() error {
	return s.client.Close()
}

func (s *ReportStore) basePath(rep *report.QualityReport) string {
	timestamp := s.timeNow().UTC().Format("20060102_150405")
	return path.Join(s.prefix, rep.Database, rep.Table, timestamp)
}
