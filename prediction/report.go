package prediction

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var reportHeader = []string{
	"index", "name", "time_ms",
	"ops", "weight_elements", "input_elements", "output_elements",
}

// WriteCSV writes one row per predicted layer, preceded by a header row.
func WriteCSV(w io.Writer, result Result) error {
	writer := csv.NewWriter(w)

	err := writer.Write(reportHeader)
	if err != nil {
		return err
	}

	for _, l := range result.Layers {
		record := []string{
			strconv.Itoa(l.Index),
			l.Name,
			formatFloat(l.TimeMs),
			formatFloat(l.Costs.Ops),
			formatFloat(l.Costs.WeightElements),
			formatFloat(l.Costs.InputElements),
			formatFloat(l.Costs.OutputElements),
		}

		err = writer.Write(record)
		if err != nil {
			return err
		}
	}

	writer.Flush()

	return writer.Error()
}

// ReadCSV reads a report written by WriteCSV.
func ReadCSV(r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.Comma = ','
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return Result{}, err
	}

	result := newResult()

	for i, record := range records {
		if i == 0 {
			continue
		}

		layer, err := parseLayerPrediction(record)
		if err != nil {
			return Result{}, fmt.Errorf("report row %d: %w", i, err)
		}

		result.add(layer)
	}

	return result, nil
}

func parseLayerPrediction(record []string) (LayerPrediction, error) {
	if len(record) != len(reportHeader) {
		return LayerPrediction{}, fmt.Errorf("expected %d fields, got %d",
			len(reportHeader), len(record))
	}

	var (
		l   LayerPrediction
		err error
	)

	l.Index, err = strconv.Atoi(record[0])
	if err != nil {
		return LayerPrediction{}, err
	}

	l.Name = record[1]

	values := []*float64{
		&l.TimeMs,
		&l.Costs.Ops,
		&l.Costs.WeightElements,
		&l.Costs.InputElements,
		&l.Costs.OutputElements,
	}

	for i, v := range values {
		*v, err = strconv.ParseFloat(record[i+2], 64)
		if err != nil {
			return LayerPrediction{}, err
		}
	}

	return l, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
