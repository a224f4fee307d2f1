// Command qrscan decodes the QR labels of a whole video into a CSV table.
package main

import (
	"flag"
	"fmt"
	"os"

	"grape-calib/internal/config"
	"grape-calib/internal/cvio"
	"grape-calib/internal/logging"
	"grape-calib/internal/pipeline"
	"grape-calib/internal/version"
)

func main() {
	input := flag.String("i", "", "Input video")
	output := flag.String("o", "", "Output CSV")
	start := flag.Int("start", 0, "First frame to scan")
	cfgPath := flag.String("config", "", "YAML configuration file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("qrscan", version.String())
		return
	}
	if *input == "" || *output == "" {
		fmt.Println("Usage: qrscan -i <video> -o <table.csv> [-start <frame>]")
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.NewLogger("qrscan", cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Directory)

	src, err := cvio.OpenCapture(*input)
	if err != nil {
		log.WithError(err).Fatal("failed to open video")
	}
	defer src.Close()
	src.Logger = log
	if err := src.Seek(*start); err != nil {
		log.WithError(err).Fatal("failed to seek")
	}

	table, err := pipeline.NewQRTable(*output)
	if err != nil {
		log.WithError(err).Fatal("failed to create CSV")
	}
	dec := cvio.NewQRDecoder()
	defer dec.Close()

	_, scanErr := pipeline.ScanQR(src, dec, table, log.WithField("input", *input))
	if err := table.Close(); err != nil {
		log.WithError(err).Fatal("failed to write CSV")
	}
	if scanErr != nil {
		log.WithError(scanErr).Fatal("scan aborted")
	}
}
