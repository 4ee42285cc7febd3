package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"subtrans/internal/diag"
	"subtrans/internal/pipeline"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// renderSummary: 每个文件一行（批次、回退、降级、状态、耗时）。
func renderSummary(reports []pipeline.FileReport) string {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		status := "ok"
		if r.Err != nil {
			status = "failed: " + string(diag.Classify(r.Err))
		}
		rows = append(rows, []string{
			string(r.FileID),
			string(r.Output),
			fmt.Sprint(r.Outcome.Batches),
			fmt.Sprint(len(r.Outcome.Fallbacks)),
			fmt.Sprint(len(r.Outcome.Degradations)),
			status,
			r.Duration.Round(time.Millisecond).String(),
		})
	}
	return renderTable(
		[]string{"file", "output", "batches", "fallbacks", "degradations", "status", "duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignRight},
	)
}

func renderMetrics(samples []diag.Sample) string {
	rows := make([][]string, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, []string{s.Name, s.Key, fmt.Sprint(s.Value)})
	}
	return renderTable([]string{"metric", "key", "value"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight})
}
