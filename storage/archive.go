package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bracketlab/bracket-engine/models"
	"github.com/bracketlab/bracket-engine/standings"
)

// Archiver exports a snapshot of a finished competition, the full node
// arena plus final standings, to the object store. The snapshot is the
// immutable record consumers can fetch long after the live API moves on.
type Archiver struct {
	uploader FileUploader
	logger   *slog.Logger
}

func NewArchiver(uploader FileUploader, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{uploader: uploader, logger: logger}
}

type competitionArchive struct {
	Competition *models.Competition   `json:"competition"`
	Standings   []*models.Entrant     `json:"standings"`
	Nodes       []*models.BracketNode `json:"nodes"`
	ExportedAt  time.Time             `json:"exported_at"`
}

// ExportCompetition serializes the competition aggregate and uploads it
// under archives/competitions/<id>.json.
func (a *Archiver) ExportCompetition(ctx context.Context, comp *models.Competition) error {
	archive := competitionArchive{
		Competition: comp,
		Standings:   standings.Rank(comp.Entrants, comp.Format, nil),
		Nodes:       comp.Nodes,
		ExportedAt:  time.Now().UTC(),
	}

	payload, err := json.Marshal(archive)
	if err != nil {
		return fmt.Errorf("failed to marshal archive for competition %d: %w", comp.ID, err)
	}

	key := fmt.Sprintf("archives/competitions/%d.json", comp.ID)
	result, err := a.uploader.Upload(ctx, key, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	a.logger.Info("competition archive exported",
		"competition_id", comp.ID, "key", result.Key, "location", result.Location)
	return nil
}
