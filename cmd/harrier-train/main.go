// Harrier - Real-time POS fraud detection that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// harrier-train fits a fraud model on a labeled transaction CSV and
// writes the artifact the service loads at startup or via POST
// /model/reload.
//
// Usage:
//
//	harrier-train -data transactions.csv -out harrier_model.gob
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/opensource-finance/harrier/internal/dataset"
	"github.com/opensource-finance/harrier/internal/detector"
	"github.com/opensource-finance/harrier/internal/domain"
)

func main() {
	var (
		dataPath = flag.String("data", "", "Path to pipe-delimited labeled transaction CSV (required)")
		outPath  = flag.String("out", "./harrier_model.gob", "Path to write the trained model artifact")
		seed     = flag.Int64("seed", 42, "Shuffle seed for the train/validation/test split")
		noSplit  = flag.Bool("no-split", false, "Train on the full dataset without a held-out evaluation")
	)
	flag.Parse()

	if *dataPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -data flag is required")
		flag.Usage()
		os.Exit(1)
	}

	fmt.Printf("Loading dataset from %s...\n", *dataPath)
	start := time.Now()
	rows, err := dataset.Load(*dataPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load dataset: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d transactions in %v\n", len(rows), time.Since(start).Round(time.Millisecond))

	train := rows
	var testRows []domain.LabeledTransaction
	if !*noSplit {
		cfg := dataset.DefaultSplitConfig()
		cfg.Seed = *seed
		var val []domain.LabeledTransaction
		train, val, testRows, err = dataset.Split(rows, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to split dataset: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Split: %d train / %d validation / %d test\n", len(train), len(val), len(testRows))
	}

	det := detector.New()

	fmt.Println("Training...")
	start = time.Now()
	summary, err := det.Train(train)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: training failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Trained in %v\n", time.Since(start).Round(time.Millisecond))

	fmt.Println()
	fmt.Println("Training summary:")
	fmt.Printf("  Samples:    %d\n", summary.Samples)
	fmt.Printf("  Features:   %d\n", summary.Features)
	fmt.Printf("  Fraud rate: %.4f\n", summary.FraudRate)
	fmt.Printf("  Threshold:  %.6e\n", summary.Threshold)
	fmt.Printf("  F1:         %.4f (precision %.4f, recall %.4f)\n", summary.F1, summary.Precision, summary.Recall)

	if len(testRows) > 0 {
		report, err := det.Evaluate(testRows)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: evaluation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()
		fmt.Println("Held-out test set:")
		fmt.Printf("  Samples:   %d\n", report.Samples)
		fmt.Printf("  Accuracy:  %.4f\n", report.Accuracy)
		fmt.Printf("  Precision: %.4f\n", report.Precision)
		fmt.Printf("  Recall:    %.4f\n", report.Recall)
		fmt.Printf("  F1:        %.4f\n", report.F1)
		fmt.Printf("  Confusion: TP=%d FP=%d TN=%d FN=%d\n", report.TP, report.FP, report.TN, report.FN)
	}

	if err := det.Save(*outPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save model: %v\n", err)
		os.Exit(1)
	}
	fmt.Println()
	fmt.Printf("Model written to %s\n", *outPath)
}
