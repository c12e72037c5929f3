package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/dylanpieper/batchGPT/processor"
	"github.com/dylanpieper/batchGPT/utils"
)

// SaveToExcel maintains a workbook with a Batches sheet appending every
// checkpoint and an Output sheet holding the latest run snapshot.
type SaveToExcel struct {
	filePath   string
	writer     *utils.ExcelWriter
	processors []processor.Processor
}

func NewSaveToExcel(config map[string]interface{}) (*SaveToExcel, error) {
	filePath, ok := config["file_path"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid configuration: missing 'file_path'")
	}

	headers := []string{"RunKey", "Column", "Batch", "TotalBatches", "Status", "Rows", "TotalTime", "Timestamp"}
	writer, err := utils.NewExcelWriter(filePath, "Batches", headers)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel writer: %w", err)
	}

	return &SaveToExcel{
		filePath: filePath,
		writer:   writer,
	}, nil
}

func (c *SaveToExcel) Subscribe(processor processor.Processor) {
	c.processors = append(c.processors, processor)
}

func (c *SaveToExcel) Process(ctx context.Context, msg processor.Message) error {
	payloadBytes, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte type for message.Payload, got %T", msg.Payload)
	}

	switch eventType(payloadBytes) {
	case eventBatchCheckpoint:
		return c.appendCheckpoint(payloadBytes)
	case eventRunReport:
		return c.writeOutput(payloadBytes)
	default:
		return nil
	}
}

func (c *SaveToExcel) appendCheckpoint(payloadBytes []byte) error {
	var event batchCheckpointEvent
	if err := json.Unmarshal(payloadBytes, &event); err != nil {
		return err
	}

	values := []interface{}{
		event.RunKey,
		event.Column,
		event.Batch,
		event.TotalBatches,
		event.Status,
		event.Rows,
		event.TotalTime,
		event.Timestamp.Format("2006-01-02 15:04:05"),
	}

	if err := c.writer.AppendRow(values); err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}

	if err := c.writer.Save(); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}

	return nil
}

func (c *SaveToExcel) writeOutput(payloadBytes []byte) error {
	var event runReportEvent
	if err := json.Unmarshal(payloadBytes, &event); err != nil {
		return err
	}
	if event.Output == nil {
		log.Printf("Run report for %s carried no output snapshot", event.RunKey)
		return nil
	}

	headers := event.Output.Columns()
	rows := make([][]interface{}, event.Output.NumRows())
	for r := 0; r < event.Output.NumRows(); r++ {
		row, err := event.Output.Row(r)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = v
		}
		rows[r] = values
	}

	if err := c.writer.WriteSheet("Output", headers, rows); err != nil {
		return err
	}

	if err := c.writer.Save(); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}

	return nil
}

func (c *SaveToExcel) Close() error {
	if c.writer != nil {
		return c.writer.Close()
	}
	return nil
}
