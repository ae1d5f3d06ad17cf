package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"

	"github.com/yungbote/benchwatch-backend/internal/ml/detect"
	"github.com/yungbote/benchwatch-backend/internal/mlerr"
)

func TestDetectAgainstLatest(t *testing.T) {
	env := newTestEnv(t)
	key := testKey()
	train := env.writeCSV(t, "train.csv", csvThreeCols)
	if _, err := env.trainer.HandleNewDataset(bg(), train, key); err != nil {
		t.Fatalf("train: %v", err)
	}

	// One row far outside the training range on every feature.
	score := env.writeCSV(t, "score.csv", "pressure,flow,temp\n2,3,4\n3,4,5\n500,600,700\n")
	res, err := env.detector.Detect(bg(), score, key, 0, detect.PolicyMeanPlus2Std, 0)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Version != 1 {
		t.Fatalf("scored against version %d, want 1", res.Version)
	}
	if res.Stats.TotalPoints != 3 {
		t.Fatalf("total points=%d, want 3", res.Stats.TotalPoints)
	}
	if len(res.ReconstructionErrors) != 3 {
		t.Fatalf("errors=%v", res.ReconstructionErrors)
	}
	// The outlier must carry the largest reconstruction error.
	if res.ReconstructionErrors[2] <= res.ReconstructionErrors[0] {
		t.Fatalf("outlier not separated: %v", res.ReconstructionErrors)
	}
}

func TestDetectUnknownLineage(t *testing.T) {
	env := newTestEnv(t)
	score := env.writeCSV(t, "score.csv", csvThreeCols)
	_, err := env.detector.Detect(bg(), score, testKey(), 0, detect.DefaultPolicy, 0)
	if !errors.Is(err, mlerr.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestDetectExplicitVersionNotFound(t *testing.T) {
	env := newTestEnv(t)
	key := testKey()
	train := env.writeCSV(t, "train.csv", csvThreeCols)
	if _, err := env.trainer.HandleNewDataset(bg(), train, key); err != nil {
		t.Fatalf("train: %v", err)
	}
	score := env.writeCSV(t, "score.csv", csvThreeCols)
	if _, err := env.detector.Detect(bg(), score, key, 7, detect.DefaultPolicy, 0); !errors.Is(err, mlerr.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound for unknown version, got %v", err)
	}
}

func TestDetectDimensionMismatch(t *testing.T) {
	env := newTestEnv(t)
	key := testKey()
	train := env.writeCSV(t, "train.csv", csvThreeCols)
	if _, err := env.trainer.HandleNewDataset(bg(), train, key); err != nil {
		t.Fatalf("train: %v", err)
	}
	score := env.writeCSV(t, "score.csv", csvTwoCols)
	_, err := env.detector.Detect(bg(), score, key, 0, detect.DefaultPolicy, 0)
	var dimErr *mlerr.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionError, got %v", err)
	}
	if dimErr.Want != 3 || dimErr.Got != 2 {
		t.Fatalf("DimensionError=%+v", dimErr)
	}
}

func TestDetectDoesNotMutateScalerState(t *testing.T) {
	env := newTestEnv(t)
	key := testKey()
	train := env.writeCSV(t, "train.csv", csvThreeCols)
	if _, err := env.trainer.HandleNewDataset(bg(), train, key); err != nil {
		t.Fatalf("train: %v", err)
	}

	score := env.writeCSV(t, "score.csv", "pressure,flow,temp\n100,200,300\n")
	first, err := env.detector.Detect(bg(), score, key, 0, detect.PolicyCustom, 1)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	second, err := env.detector.Detect(bg(), score, key, 0, detect.PolicyCustom, 1)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if first.ReconstructionErrors[0] != second.ReconstructionErrors[0] {
		t.Fatalf("repeated detection changed scores: %v vs %v",
			first.ReconstructionErrors[0], second.ReconstructionErrors[0])
	}
}

func TestCompareBothSidesScore(t *testing.T) {
	env := newTestEnv(t)
	key := testKey()
	for _, name := range []string{"a.csv", "b.csv"} {
		path := env.writeCSV(t, name, csvThreeCols)
		if _, err := env.trainer.HandleNewDataset(bg(), path, key); err != nil {
			t.Fatalf("train %s: %v", name, err)
		}
	}

	score := env.writeCSV(t, "score.csv", csvThreeCols)
	cmp, err := env.detector.Compare(bg(), score, key, 1, 2, detect.DefaultPolicy, 0)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if cmp.A.Skipped || cmp.B.Skipped {
		t.Fatalf("no side should be skipped: %+v", cmp)
	}
	if cmp.A.Result.Version != 1 || cmp.B.Result.Version != 2 {
		t.Fatalf("versions=%d/%d, want 1/2", cmp.A.Result.Version, cmp.B.Result.Version)
	}
}

func TestCompareSkipsIncompatibleSide(t *testing.T) {
	env := newTestEnv(t)
	key := testKey()
	// Version 1 trains on three features, version 2 resets to two.
	a := env.writeCSV(t, "a.csv", csvThreeCols)
	if _, err := env.trainer.HandleNewDataset(bg(), a, key); err != nil {
		t.Fatalf("train v1: %v", err)
	}
	b := env.writeCSV(t, "b.csv", csvTwoCols)
	if _, err := env.trainer.HandleNewDataset(bg(), b, key); err != nil {
		t.Fatalf("train v2: %v", err)
	}

	// Two-column data: version 1 cannot score it, version 2 can.
	score := env.writeCSV(t, "score.csv", csvTwoCols)
	cmp, err := env.detector.Compare(bg(), score, key, 1, 2, detect.DefaultPolicy, 0)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !cmp.A.Skipped {
		t.Fatal("version 1 side should be skipped on dimension mismatch")
	}
	if cmp.A.Warning == "" {
		t.Fatal("skipped side should carry a warning")
	}
	if cmp.B.Skipped || cmp.B.Result == nil {
		t.Fatalf("version 2 side should score: %+v", cmp.B)
	}
}

func TestCompareFailsWhenNoSideScores(t *testing.T) {
	env := newTestEnv(t)
	key := testKey()
	for _, name := range []string{"a.csv", "b.csv"} {
		path := env.writeCSV(t, name, csvThreeCols)
		if _, err := env.trainer.HandleNewDataset(bg(), path, key); err != nil {
			t.Fatalf("train %s: %v", name, err)
		}
	}
	score := env.writeCSV(t, "score.csv", csvTwoCols)
	_, err := env.detector.Compare(bg(), score, key, 1, 2, detect.DefaultPolicy, 0)
	var dimErr *mlerr.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionError when both sides skip, got %v", err)
	}
}

func TestExportAnomaliesCSV(t *testing.T) {
	env := newTestEnv(t)
	key := testKey()
	train := env.writeCSV(t, "train.csv", csvThreeCols)
	if _, err := env.trainer.HandleNewDataset(bg(), train, key); err != nil {
		t.Fatalf("train: %v", err)
	}

	score := env.writeCSV(t, "score.csv", "pressure,flow,temp\n2,3,4\n900,901,902\n")
	var buf bytes.Buffer
	if err := env.detector.ExportAnomalies(bg(), score, key, 0, detect.PolicyMeanPlus2Std, 0, &buf); err != nil {
		t.Fatalf("ExportAnomalies: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	header := records[0]
	if header[0] != "data_point_index" || header[1] != "reconstruction_error" {
		t.Fatalf("export header=%v", header)
	}
	if len(header) != 5 {
		t.Fatalf("export header width=%d, want index+error+3 features", len(header))
	}
	// The outlier row index 1 must be exported.
	found := false
	for _, rec := range records[1:] {
		if rec[0] == "1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("outlier row missing from export: %v", records)
	}
}
