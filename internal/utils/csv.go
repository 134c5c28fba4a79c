package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"levelwatch/internal/domain"
)

func WriteBarsToCSV(bars []domain.Bar, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"open_time", "symbol", "timeframe", "open", "high", "low", "close", "volume"})

	for _, b := range bars {
		writer.Write([]string{
			b.OpenTime.Format(time.RFC3339),
			b.Symbol,
			string(b.Timeframe),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		})
	}
	return writer.Error()
}
