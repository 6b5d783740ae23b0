package detector

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opensource-finance/harrier/internal/feature"
	"github.com/opensource-finance/harrier/internal/gaussian"
)

// artifact is the gob-serialized bundle of trained state. Field layout
// changes require bumping FormatVersion.
type artifact struct {
	FormatVersion int

	Columns       []string
	Vocabularies  map[string]map[string]int
	AmountCap     float64
	CityPopCap    float64
	NormMean      []float64
	NormStd       []float64
	GaussianMean  []float64
	Covariance    [][]float64
	Threshold     float64
	Summary       TrainingSummary
}

const artifactVersion = 1

// Save writes the trained state to path. The artifact is written to a
// temporary file and renamed so a crash never leaves a truncated model on
// disk.
func (d *Detector) Save(path string) error {
	d.mu.RLock()
	st := d.state
	d.mu.RUnlock()
	if st == nil {
		return ErrUntrained
	}

	art := artifact{
		FormatVersion: artifactVersion,
		Columns:       st.builder.Columns,
		Vocabularies:  st.builder.Vocabularies(),
		AmountCap:     st.builder.AmountCap,
		CityPopCap:    st.builder.CityPopCap,
		NormMean:      st.normMean,
		NormStd:       st.normStd,
		GaussianMean:  st.model.Mean(),
		Covariance:    st.model.Covariance(),
		Threshold:     st.threshold,
		Summary:       st.summary,
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".harrier-model-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(&art); err != nil {
		tmp.Close()
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install artifact: %w", err)
	}
	return nil
}

// Load replaces the detector state with a saved artifact. All-or-nothing:
// on any error the detector keeps whatever state it had before the call.
func (d *Detector) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	var art artifact
	if err := gob.NewDecoder(f).Decode(&art); err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}
	if art.FormatVersion != artifactVersion {
		return fmt.Errorf("artifact version %d, want %d", art.FormatVersion, artifactVersion)
	}

	model, err := gaussian.New(art.GaussianMean, art.Covariance)
	if err != nil {
		return fmt.Errorf("rebuild gaussian model: %w", err)
	}
	builder := feature.Restore(art.Columns, art.Vocabularies, art.AmountCap, art.CityPopCap)

	d.mu.Lock()
	d.state = &trainedState{
		builder:   builder,
		model:     model,
		normMean:  art.NormMean,
		normStd:   art.NormStd,
		threshold: art.Threshold,
		summary:   art.Summary,
	}
	d.mu.Unlock()
	return nil
}
