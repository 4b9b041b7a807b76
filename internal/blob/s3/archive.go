package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

// ReportArchive implements domain.OutcomeSink by uploading every cycle's
// rendered report and its full JSON outcome:
//
//	<prefix>/<chain>/<ladder>/YYYY/MM/DD/<cycle_id>.txt
//	<prefix>/<chain>/<ladder>/YYYY/MM/DD/<cycle_id>.json
type ReportArchive struct {
	writer domain.BlobWriter
	prefix string
}

// NewReportArchive creates a ReportArchive writing under prefix.
func NewReportArchive(writer domain.BlobWriter, prefix string) *ReportArchive {
	return &ReportArchive{writer: writer, prefix: strings.Trim(prefix, "/")}
}

// Name implements domain.OutcomeSink.
func (a *ReportArchive) Name() string { return "s3" }

// Record implements domain.OutcomeSink.
func (a *ReportArchive) Record(ctx context.Context, out domain.CycleOutcome) error {
	base := a.objectBase(out)

	text := out.ReportTitle + "\n\n" + out.ReportText + "\n"
	if err := a.writer.Put(ctx, base+".txt", strings.NewReader(text), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("s3blob: archive report: %w", err)
	}

	buf, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal outcome: %w", err)
	}
	if err := a.writer.Put(ctx, base+".json", bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive outcome: %w", err)
	}
	return nil
}

func (a *ReportArchive) objectBase(out domain.CycleOutcome) string {
	ts := out.FinishedAt.UTC()
	return path.Join(
		a.prefix,
		out.Chain,
		strings.ToLower(out.Ladder.Hex()),
		ts.Format("2006/01/02"),
		out.CycleID.String(),
	)
}

var _ domain.OutcomeSink = (*ReportArchive)(nil)
