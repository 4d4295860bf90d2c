package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"pairlab/internal/engine"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string    `json:"id"`
	System      string    `json:"system"`
	Timestamp   time.Time `json:"timestamp"`
	Particles   int       `json:"particles"`
	PairCount   int       `json:"pair_count"`
	Steps       int       `json:"steps"`
	Dt          float64   `json:"dt"`
	Beta        float64   `json:"beta"`
	Cutoff      float64   `json:"cutoff"`
	FinalEnergy float64   `json:"final_energy"`
	EnergyDrift float64   `json:"energy_drift"`
}

func (s *Store) Save(meta RunMetadata, result *engine.Result) (string, error) {
	runID := fmt.Sprintf("%s_%d", meta.System, time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Timestamp = time.Now()
	meta.FinalEnergy = result.FinalEnergy
	meta.EnergyDrift = result.EnergyDrift
	meta.Steps = result.StepsTaken

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "trajectory.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	if err := w.Write([]string{"time", "energy", "max_force"}); err != nil {
		return "", err
	}
	for _, rec := range result.Records {
		row := []string{
			strconv.FormatFloat(rec.Time, 'f', 6, 64),
			strconv.FormatFloat(rec.Energy, 'g', 12, 64),
			strconv.FormatFloat(rec.MaxForce, 'g', 12, 64),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	return runID, nil
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}

		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		runs = append(runs, meta)
	}
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadRecords reads a run's per-step trajectory back.
func (s *Store) LoadRecords(runID string) ([]engine.StepRecord, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "trajectory.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return []engine.StepRecord{}, nil
	}

	records := make([]engine.StepRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 3 {
			continue
		}
		t, err1 := strconv.ParseFloat(row[0], 64)
		e, err2 := strconv.ParseFloat(row[1], 64)
		f, err3 := strconv.ParseFloat(row[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("malformed trajectory row %q", row)
		}
		records = append(records, engine.StepRecord{Time: t, Energy: e, MaxForce: f})
	}
	return records, nil
}
